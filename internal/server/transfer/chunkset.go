package transfer

import (
	"crypto/sha256"
	"slices"
	"sort"
)

type chunkMeta struct {
	offset   uint64
	length   uint64
	position uint64
	tag      []byte
	digest   [sha256.Size]byte
}

// ChunkSet is the set of staged chunks of one transfer. Chunks are kept
// disjoint; a chunk stored at an existing offset replaces the old one.
type ChunkSet struct {
	offsets  []uint64
	byOffset map[uint64]chunkMeta
	bytes    uint64
}

func newChunkSet() *ChunkSet {
	return &ChunkSet{byOffset: make(map[uint64]chunkMeta)}
}

func (c *ChunkSet) get(offset uint64) (chunkMeta, bool) {
	m, ok := c.byOffset[offset]
	return m, ok
}

func (c *ChunkSet) put(m chunkMeta) {
	if old, ok := c.byOffset[m.offset]; ok {
		c.bytes -= old.length
	} else {
		i, _ := slices.BinarySearch(c.offsets, m.offset)
		c.offsets = slices.Insert(c.offsets, i, m.offset)
	}
	c.byOffset[m.offset] = m
	c.bytes += m.length
}

// overlaps reports whether [offset, offset+length) intersects a chunk
// stored at a different offset.
func (c *ChunkSet) overlaps(offset, length uint64) bool {
	end := offset + length
	i := sort.Search(len(c.offsets), func(i int) bool { return c.offsets[i] >= offset })

	if i > 0 {
		prev := c.byOffset[c.offsets[i-1]]
		if prev.offset+prev.length > offset {
			return true
		}
	}
	if i < len(c.offsets) && c.offsets[i] == offset {
		i++
	}
	if i < len(c.offsets) && c.offsets[i] < end {
		return true
	}
	return false
}

// Bytes is the number of distinct bytes covered.
func (c *ChunkSet) Bytes() uint64 { return c.bytes }

func (c *ChunkSet) Len() int { return len(c.offsets) }

// Missing returns the gaps in [0, total) not covered by any chunk.
func (c *ChunkSet) Missing(total uint64) []Range {
	var (
		gaps []Range
		pos  uint64
	)
	for _, off := range c.offsets {
		if off > pos {
			gaps = append(gaps, Range{Offset: pos, Length: off - pos})
		}
		if end := off + c.byOffset[off].length; end > pos {
			pos = end
		}
	}
	if pos < total {
		gaps = append(gaps, Range{Offset: pos, Length: total - pos})
	}
	return gaps
}

// ordered returns the chunks in offset order.
func (c *ChunkSet) ordered() []chunkMeta {
	out := make([]chunkMeta, 0, len(c.offsets))
	for _, off := range c.offsets {
		out = append(out, c.byOffset[off])
	}
	return out
}
