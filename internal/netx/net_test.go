package netx

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownload(t *testing.T) {
	body := []byte("hello, artifact")
	sum := sha256.Sum256(body)
	hash := hex.EncodeToString(sum[:])

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ok" {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte("SignatureDoesNotMatch"))
			return
		}
		assert.Equal(t, http.MethodGet, r.Method)
		_, _ = w.Write(body)
	}))
	defer ts.Close()

	t.Run("success with hash", func(t *testing.T) {
		var buf bytes.Buffer
		n, err := Download(context.Background(), ts.Client(), ts.URL+"/ok?X-Amz-Signature=abc", &buf, strings.ToUpper(hash))
		require.NoError(t, err)
		assert.EqualValues(t, len(body), n)
		assert.Equal(t, body, buf.Bytes())
	})

	t.Run("no hash check", func(t *testing.T) {
		var buf bytes.Buffer
		_, err := Download(context.Background(), nil, ts.URL+"/ok", &buf, "")
		require.NoError(t, err)
	})

	t.Run("hash mismatch", func(t *testing.T) {
		var buf bytes.Buffer
		_, err := Download(context.Background(), ts.Client(), ts.URL+"/ok", &buf, "00")
		assert.ErrorIs(t, err, ErrHashMismatch)
	})

	t.Run("non-200", func(t *testing.T) {
		var buf bytes.Buffer
		_, err := Download(context.Background(), ts.Client(), ts.URL+"/denied", &buf, "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "403")
		assert.Contains(t, err.Error(), "SignatureDoesNotMatch")
	})

	t.Run("bad url", func(t *testing.T) {
		_, err := Download(context.Background(), nil, "://nope", &bytes.Buffer{}, "")
		assert.Error(t, err)
	})

	t.Run("canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := Download(ctx, ts.Client(), ts.URL+"/ok", &bytes.Buffer{}, "")
		assert.ErrorIs(t, err, context.Canceled)
	})
}
