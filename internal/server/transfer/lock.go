package transfer

import "sync"

// positionLocks hands out one mutex per chunk offset, so writers to the same
// position serialize while other positions proceed in parallel.
type positionLocks struct {
	mu    sync.Mutex
	locks map[uint64]*positionLock
}

type positionLock struct {
	sync.Mutex
	refs int
}

func (p *positionLocks) lock(offset uint64) func() {
	p.mu.Lock()
	if p.locks == nil {
		p.locks = make(map[uint64]*positionLock)
	}
	l, ok := p.locks[offset]
	if !ok {
		l = &positionLock{}
		p.locks[offset] = l
	}
	l.refs++
	p.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		p.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(p.locks, offset)
		}
		p.mu.Unlock()
	}
}
