package rpc

import (
	"bytes"
	"testing"

	"github.com/dmitrijs2005/bridgex/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/encoding"
)

func TestValidate(t *testing.T) {
	key := bytes.Repeat([]byte{1}, 32)
	tests := []struct {
		name    string
		req     Validator
		wantErr bool
	}{
		{"pairing ok", &RequestPairingRequest{DeviceName: "phone"}, false},
		{"pairing no name", &RequestPairingRequest{}, true},
		{"pairing long name", &RequestPairingRequest{DeviceName: string(bytes.Repeat([]byte{'a'}, 129))}, true},
		{"complete ok", &CompletePairingRequest{DeviceID: "d", PublicKey: key}, false},
		{"complete short key", &CompletePairingRequest{DeviceID: "d", PublicKey: key[:31]}, true},
		{"complete no id", &CompletePairingRequest{PublicKey: key}, true},
		{"delete no id", &DeleteDeviceRequest{}, true},
		{"init ok", &InitTransferRequest{FileName: "a", FileHash: "00"}, false},
		{"init no hash", &InitTransferRequest{FileName: "a"}, true},
		{"init negative chunk", &InitTransferRequest{FileName: "a", FileHash: "00", ChunkSize: -1}, true},
		{"chunk ok", &UploadChunkRequest{TransferID: "t", Data: []byte{1}, Tag: []byte{2}}, false},
		{"chunk empty", &UploadChunkRequest{TransferID: "t", Tag: []byte{2}}, true},
		{"chunk no tag", &UploadChunkRequest{TransferID: "t", Data: []byte{1}}, true},
		{"finalize no id", &FinalizeTransferRequest{}, true},
		{"status no id", &TransferStatusRequest{}, true},
		{"list negative", &ListTransfersRequest{Limit: -1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, common.ErrInvalidRequest)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCodec_BytesAsBase64(t *testing.T) {
	c := Codec{}
	assert.Equal(t, "json", c.Name())

	b, err := c.Marshal(&UploadChunkRequest{TransferID: "t", Position: 3, Data: []byte("hi"), Tag: []byte{0xff}})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"data":"aGk="`)

	var got UploadChunkRequest
	require.NoError(t, c.Unmarshal(b, &got))
	assert.Equal(t, []byte("hi"), got.Data)
	assert.Equal(t, uint64(3), got.Position)
}

func TestCodec_Registered(t *testing.T) {
	c := encoding.GetCodec(CodecName)
	require.NotNil(t, c)
	assert.Equal(t, CodecName, c.Name())
}

func TestServiceDesc_Methods(t *testing.T) {
	assert.Equal(t, "bridgex.v1.Bridge", ServiceDesc.ServiceName)
	assert.Len(t, ServiceDesc.Methods, 10)
	assert.Equal(t, "/bridgex.v1.Bridge/UploadChunk", FullMethod(MethodUploadChunk))
}
