package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/bridgex/internal/client/client"
	"github.com/dmitrijs2005/bridgex/internal/client/models"
	"github.com/dmitrijs2005/bridgex/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/bridgex/internal/common"
	"github.com/dmitrijs2005/bridgex/internal/cryptox"
	"github.com/dmitrijs2005/bridgex/internal/logging"
	"github.com/dmitrijs2005/bridgex/internal/pairing"
	"github.com/dmitrijs2005/bridgex/internal/rpc"
)

const (
	keyDeviceID        = "device_id"
	keyDeviceName      = "device_name"
	keyAccessToken     = "access_token"
	keyServerPublicKey = "server_public_key"
	keySharedSecret    = "shared_secret"
)

var credentialKeys = []string{keyDeviceID, keyDeviceName, keyAccessToken, keyServerPublicKey, keySharedSecret}

// DeviceType is announced to the server when this CLI requests pairing.
const DeviceType = "cli"

// ErrKeyConfirmation means the server could not prove it derived the same
// session key; the pairing is discarded.
var ErrKeyConfirmation = errors.New("server key confirmation failed")

// CredentialSource yields the stored pairing credentials.
type CredentialSource interface {
	Credentials(ctx context.Context) (*models.Credentials, error)
}

// PairingService pairs this machine with a bridge server and keeps the
// resulting credentials in local state.
type PairingService interface {
	CredentialSource
	// Invite asks the server for a new invitation for deviceName.
	Invite(ctx context.Context, deviceName string) (*rpc.RequestPairingResponse, error)
	// Pair completes the invitation encoded in uri.
	Pair(ctx context.Context, uri string) (*models.Credentials, error)
	// Restore loads stored credentials into the client. It returns
	// client.ErrNotPaired when there are none.
	Restore(ctx context.Context) error
	Unpair(ctx context.Context) error
	Devices(ctx context.Context) ([]rpc.Device, error)
	Ping(ctx context.Context) error
	Close() error
}

type pairingService struct {
	client client.Client
	meta   metadata.Repository
	logger logging.Logger
}

func NewPairingService(c client.Client, meta metadata.Repository, logger logging.Logger) PairingService {
	return &pairingService{client: c, meta: meta, logger: logger}
}

func (s *pairingService) Invite(ctx context.Context, deviceName string) (*rpc.RequestPairingResponse, error) {
	return s.client.RequestPairing(ctx, deviceName, DeviceType)
}

func (s *pairingService) Pair(ctx context.Context, uri string) (*models.Credentials, error) {
	invite, err := pairing.ParseURI(uri)
	if err != nil {
		return nil, err
	}

	kp, err := cryptox.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	defer kp.Wipe()

	resp, err := s.client.CompletePairing(ctx, invite.DeviceID, kp.PublicKey[:])
	if err != nil {
		return nil, err
	}

	if subtle.ConstantTimeCompare(resp.ServerPublicKey, invite.PublicKey[:]) != 1 {
		return nil, fmt.Errorf("%w: server key differs from invitation", common.ErrKeyMismatch)
	}

	secret, err := cryptox.DeriveSharedSecret(kp.PrivateKey[:], invite.PublicKey[:])
	if err != nil {
		return nil, err
	}
	pairingKey := cryptox.DeriveSessionKey(secret[:], cryptox.InfoPairing)
	defer common.WipeByteArray(pairingKey[:])

	if !cryptox.VerifyKeyConfirmation(pairingKey[:], resp.DeviceID, resp.KeyConfirmation) {
		common.WipeByteArray(secret[:])
		return nil, ErrKeyConfirmation
	}

	creds := &models.Credentials{
		DeviceID:        resp.DeviceID,
		DeviceName:      resp.DeviceName,
		AccessToken:     resp.AccessToken,
		ServerPublicKey: invite.PublicKey,
		SharedSecret:    secret,
	}
	if err := s.save(ctx, creds); err != nil {
		return nil, err
	}
	s.client.SetAccessToken(creds.AccessToken)

	s.logger.Info(ctx, "paired", "device_id", creds.DeviceID, "device_name", creds.DeviceName)
	return creds, nil
}

func (s *pairingService) save(ctx context.Context, c *models.Credentials) error {
	return s.meta.SetMany(ctx, map[string][]byte{
		keyDeviceID:        []byte(c.DeviceID),
		keyDeviceName:      []byte(c.DeviceName),
		keyAccessToken:     []byte(c.AccessToken),
		keyServerPublicKey: c.ServerPublicKey[:],
		keySharedSecret:    c.SharedSecret[:],
	})
}

func (s *pairingService) Credentials(ctx context.Context) (*models.Credentials, error) {
	values := make(map[string][]byte, len(credentialKeys))
	for _, k := range credentialKeys {
		v, err := s.meta.Get(ctx, k)
		if errors.Is(err, common.ErrorNotFound) {
			return nil, client.ErrNotPaired
		}
		if err != nil {
			return nil, err
		}
		values[k] = v
	}

	if len(values[keyServerPublicKey]) != cryptox.KeySize || len(values[keySharedSecret]) != cryptox.KeySize {
		return nil, fmt.Errorf("%w: stored keys are corrupt", client.ErrNotPaired)
	}

	c := &models.Credentials{
		DeviceID:    string(values[keyDeviceID]),
		DeviceName:  string(values[keyDeviceName]),
		AccessToken: string(values[keyAccessToken]),
	}
	copy(c.ServerPublicKey[:], values[keyServerPublicKey])
	copy(c.SharedSecret[:], values[keySharedSecret])
	common.WipeByteArray(values[keySharedSecret])
	return c, nil
}

func (s *pairingService) Restore(ctx context.Context) error {
	c, err := s.Credentials(ctx)
	if err != nil {
		return err
	}
	defer c.Wipe()
	s.client.SetAccessToken(c.AccessToken)
	return nil
}

// Unpair removes this device on the server, then forgets it locally. A
// server that no longer knows the device does not block the local cleanup.
func (s *pairingService) Unpair(ctx context.Context) error {
	c, err := s.Credentials(ctx)
	if err != nil {
		return err
	}
	defer c.Wipe()

	err = s.client.DeleteDevice(ctx, c.DeviceID)
	switch {
	case err == nil:
	case errors.Is(err, client.ErrNotFound), errors.Is(err, client.ErrUnauthorized):
		s.logger.Warn(ctx, "server no longer knows this device", "device_id", c.DeviceID, "error", err)
	default:
		return err
	}

	if err := s.meta.Delete(ctx, credentialKeys...); err != nil {
		return err
	}
	s.client.SetAccessToken("")
	s.logger.Info(ctx, "unpaired", "device_id", c.DeviceID)
	return nil
}

func (s *pairingService) Devices(ctx context.Context) ([]rpc.Device, error) {
	return s.client.ListDevices(ctx)
}

func (s *pairingService) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

func (s *pairingService) Close() error {
	return s.client.Close()
}
