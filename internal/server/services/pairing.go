package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/bridgex/internal/common"
	"github.com/dmitrijs2005/bridgex/internal/cryptox"
	"github.com/dmitrijs2005/bridgex/internal/logging"
	"github.com/dmitrijs2005/bridgex/internal/pairing"
	"github.com/dmitrijs2005/bridgex/internal/qr"
	"github.com/dmitrijs2005/bridgex/internal/server/auth"
	"github.com/dmitrijs2005/bridgex/internal/server/config"
	"github.com/dmitrijs2005/bridgex/internal/server/keyring"
	"github.com/dmitrijs2005/bridgex/internal/server/metrics"
	"github.com/dmitrijs2005/bridgex/internal/server/models"
	"github.com/dmitrijs2005/bridgex/internal/timex"
	"github.com/google/uuid"
)

// PairingResult is returned when a pairing completes.
type PairingResult struct {
	Device *models.Device
	// AccessToken authenticates the device on later calls.
	AccessToken string
	// ServerPublicKey is the invitation's ephemeral public key.
	ServerPublicKey []byte
	// KeyConfirmation proves the server derived the same pairing key.
	KeyConfirmation []byte
}

type pendingPairing struct {
	invitation *pairing.Invitation
	keys       *cryptox.KeyPair
}

// PairingService issues pairing invitations and completes them.
//
// Invitations live only in memory. Expiry is checked lazily when a
// completion is attempted; completed device ids are remembered until the
// invitation would have expired so a replay reports AlreadyCompleted. An
// invitation being completed right now is tracked in inflight, so a
// concurrent replay sees AlreadyCompleted as well.
type PairingService struct {
	registry      *Registry
	keyring       *keyring.Keyring
	clock         timex.Clock
	log           logging.Logger
	metrics       *metrics.Metrics
	scheme        string
	jwtSecret     []byte
	tokenValidity time.Duration

	mu        sync.Mutex
	pending   map[string]*pendingPairing
	inflight  map[string]struct{}
	completed map[string]time.Time
}

func NewPairingService(r *Registry, k *keyring.Keyring, cfg *config.Config, clock timex.Clock, m *metrics.Metrics, log logging.Logger) *PairingService {
	scheme := cfg.URIScheme
	if scheme == "" {
		scheme = pairing.DefaultScheme
	}
	return &PairingService{
		registry:      r,
		keyring:       k,
		clock:         clock,
		log:           log.With("module", "pairing"),
		metrics:       m,
		scheme:        scheme,
		jwtSecret:     []byte(cfg.SecretKey),
		tokenValidity: cfg.DeviceTokenValidityDuration,
		pending:       make(map[string]*pendingPairing),
		inflight:      make(map[string]struct{}),
		completed:     make(map[string]time.Time),
	}
}

// RequestPairing creates an invitation for a new device. Nothing is
// persisted until the invitation is completed.
func (s *PairingService) RequestPairing(ctx context.Context, deviceName, deviceType string) (*pairing.Invitation, error) {
	keys, err := cryptox.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("generate key pair: %w", err)
	}

	now := s.clock.Now()
	deviceID := uuid.NewString()
	pub := append([]byte(nil), keys.PublicKey[:]...)
	inv := &pairing.Invitation{
		DeviceID:           deviceID,
		DeviceName:         deviceName,
		DeviceType:         deviceType,
		EphemeralPublicKey: pub,
		IssuedAt:           now,
		ExpiresAt:          now.Add(pairing.InvitationTTL),
		URI:                pairing.FormatURI(s.scheme, deviceID, pub),
	}
	if code, err := qr.DataURI(inv.URI); err != nil {
		s.log.Warn(ctx, "qr render failed", "device_id", deviceID, "error", err)
	} else {
		inv.QRCode = code
	}

	s.mu.Lock()
	s.pending[deviceID] = &pendingPairing{invitation: inv, keys: keys}
	s.mu.Unlock()

	s.metrics.Pairing("requested")
	s.log.Info(ctx, "pairing requested", "device_id", deviceID, "device_name", deviceName, "expires_at", inv.ExpiresAt)
	return inv, nil
}

// Invitation returns the pending, unexpired invitation for deviceID.
func (s *PairingService) Invitation(deviceID string) (*pairing.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[deviceID]
	if !ok || p.invitation.Expired(s.clock.Now()) {
		return nil, common.ErrorNotFound
	}
	return p.invitation, nil
}

// CompletePairing consumes the invitation for deviceID using the peer's
// public key. It fails with common.ErrExpired once the invitation window has
// passed and with common.ErrAlreadyCompleted on a replay.
func (s *PairingService) CompletePairing(ctx context.Context, deviceID string, peerPublicKey []byte) (*PairingResult, error) {
	now := s.clock.Now()

	p, err := s.take(deviceID, now)
	if err != nil {
		s.metrics.Pairing(outcome(err))
		s.log.Info(ctx, "pairing rejected", "device_id", deviceID, "error", err)
		return nil, err
	}
	defer p.keys.Wipe()

	secret, err := cryptox.DeriveSharedSecret(p.keys.PrivateKey[:], peerPublicKey)
	if err != nil {
		s.restore(deviceID, p)
		s.metrics.Pairing("invalid_key")
		return nil, err
	}
	sessionKey := cryptox.DeriveSessionKey(secret[:], cryptox.InfoPairing)
	confirmation := cryptox.KeyConfirmation(sessionKey[:], deviceID)
	common.WipeByteArray(sessionKey[:])

	device := &models.Device{
		ID:         deviceID,
		Name:       p.invitation.DeviceName,
		DeviceType: p.invitation.DeviceType,
		PublicKey:  append([]byte(nil), peerPublicKey...),
		PairedAt:   now,
		LastSeen:   &now,
	}
	if err := s.registry.SaveDevice(ctx, device); err != nil {
		common.WipeByteArray(secret[:])
		if errors.Is(err, common.ErrKeyMismatch) {
			s.release(deviceID)
		} else {
			s.restore(deviceID, p)
		}
		s.metrics.Pairing(outcome(err))
		return nil, err
	}

	token, err := auth.GenerateToken(deviceID, s.jwtSecret, now, s.tokenValidity)
	if err != nil {
		common.WipeByteArray(secret[:])
		s.restore(deviceID, p)
		return nil, common.ErrorInternal
	}

	s.keyring.Put(deviceID, secret)
	common.WipeByteArray(secret[:])

	s.mu.Lock()
	delete(s.inflight, deviceID)
	s.completed[deviceID] = p.invitation.ExpiresAt
	s.mu.Unlock()

	s.metrics.Pairing("completed")
	s.log.Info(ctx, "pairing completed", "device_id", deviceID, "device_name", device.Name)

	return &PairingResult{
		Device:          device,
		AccessToken:     token,
		ServerPublicKey: p.invitation.EphemeralPublicKey,
		KeyConfirmation: confirmation,
	}, nil
}

// take moves the pending invitation for deviceID to inflight so that
// concurrent completions cannot both consume it.
func (s *PairingService) take(deviceID string, now time.Time) (*pendingPairing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, done := s.completed[deviceID]; done {
		return nil, common.ErrAlreadyCompleted
	}
	if _, busy := s.inflight[deviceID]; busy {
		return nil, common.ErrAlreadyCompleted
	}
	p, ok := s.pending[deviceID]
	if !ok {
		return nil, fmt.Errorf("%w: no invitation for %s", common.ErrorNotFound, deviceID)
	}
	if p.invitation.Expired(now) {
		delete(s.pending, deviceID)
		p.keys.Wipe()
		return nil, common.ErrExpired
	}
	delete(s.pending, deviceID)
	s.inflight[deviceID] = struct{}{}
	return p, nil
}

// restore puts back an invitation whose completion failed on bad input or
// a transient error, so the peer may retry within the window.
func (s *PairingService) restore(deviceID string, p *pendingPairing) {
	keys := *p.keys
	s.mu.Lock()
	delete(s.inflight, deviceID)
	s.pending[deviceID] = &pendingPairing{invitation: p.invitation, keys: &keys}
	s.mu.Unlock()
}

// release drops the in-progress marker of an invitation that cannot be
// retried.
func (s *PairingService) release(deviceID string) {
	s.mu.Lock()
	delete(s.inflight, deviceID)
	s.mu.Unlock()
}

// PruneExpired drops expired pending invitations and completed markers.
// It returns how many entries were removed.
func (s *PairingService) PruneExpired() int {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, p := range s.pending {
		if p.invitation.Expired(now) {
			p.keys.Wipe()
			delete(s.pending, id)
			n++
		}
	}
	for id, exp := range s.completed {
		if !now.Before(exp) {
			delete(s.completed, id)
			n++
		}
	}
	return n
}

// PendingCount returns the number of invitations awaiting completion.
func (s *PairingService) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func outcome(err error) string {
	switch {
	case errors.Is(err, common.ErrExpired):
		return "expired"
	case errors.Is(err, common.ErrAlreadyCompleted):
		return "replayed"
	case errors.Is(err, common.ErrKeyMismatch):
		return "key_mismatch"
	case errors.Is(err, common.ErrorNotFound):
		return "unknown"
	default:
		return "error"
	}
}
