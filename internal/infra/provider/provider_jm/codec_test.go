package provider_jm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"favorites-sync-service/internal/domain"
)

const testTS int64 = 1700000000

func newTestCodec() *Codec {
	return NewCodec("tok-secret", "data-secret", "1.7.0")
}

// TestCodec_Sign tests token and tokenparam derivation from the timestamp.
func TestCodec_Sign(t *testing.T) {
	sig := newTestCodec().Sign(testTS)

	assert.Equal(t, testTS, sig.Timestamp)
	assert.Equal(t, "aa3599d4728ba207b93c68b816b01c26", sig.Token)
	assert.Equal(t, "1700000000,1.7.0", sig.TokenParam)
	assert.Equal(t, map[string]string{
		"token":      "aa3599d4728ba207b93c68b816b01c26",
		"tokenparam": "1700000000,1.7.0",
	}, sig.Headers())
}

// TestCodec_Decrypt_KnownVector tests decryption of a payload produced by an
// independent AES-256-ECB implementation.
func TestCodec_Decrypt_KnownVector(t *testing.T) {
	plain, err := newTestCodec().Decrypt(testTS, "n2WeMccDZxofdIvG9z5JCA==")

	require.NoError(t, err)
	assert.JSONEq(t, `{"s":"abc"}`, string(plain))
}

// TestCodec_EnvelopeDecode tests that Decode inverts Envelope.
func TestCodec_EnvelopeDecode(t *testing.T) {
	codec := newTestCodec()
	payload := map[string]any{"list": []any{map[string]any{"id": "1", "name": "a"}}, "total": 1}

	body, err := codec.Envelope(testTS, payload)
	require.NoError(t, err)

	plain, err := codec.Decode(testTS, body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"list":[{"id":"1","name":"a"}],"total":1}`, string(plain))
}

// TestCodec_Decode_WrongTimestamp tests that a key mismatch is a protocol error.
func TestCodec_Decode_WrongTimestamp(t *testing.T) {
	codec := newTestCodec()
	body, err := codec.Envelope(testTS, map[string]any{"ok": true})
	require.NoError(t, err)

	_, err = codec.Decode(testTS+1, body)

	assert.ErrorIs(t, err, domain.ErrProtocol)
}

// TestCodec_Decode_Envelopes tests the handling of non-success envelopes.
func TestCodec_Decode_Envelopes(t *testing.T) {
	codec := newTestCodec()

	tests := []struct {
		name    string
		body    string
		wantErr error
		wantAPI bool
	}{
		{name: "unauthorized", body: `{"code":401,"errorMsg":"login required"}`, wantErr: domain.ErrAuthentication},
		{name: "api error", body: `{"code":500,"errorMsg":"album not found"}`, wantAPI: true},
		{name: "not json", body: `<html>blocked</html>`, wantErr: domain.ErrProtocol},
		{name: "data not a string", body: `{"code":200,"data":{"plain":true}}`, wantErr: domain.ErrProtocol},
		{name: "data not base64", body: `{"code":200,"data":"!!!"}`, wantErr: domain.ErrProtocol},
		{name: "short ciphertext", body: `{"code":200,"data":"AAAA"}`, wantErr: domain.ErrProtocol},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.Decode(testTS, []byte(tt.body))
			require.Error(t, err)

			if tt.wantAPI {
				var apiErr *APIError
				require.ErrorAs(t, err, &apiErr)
				assert.Equal(t, 500, apiErr.Code)
				assert.Equal(t, "album not found", apiErr.Message)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

// TestPKCS7 tests padding and the rejection of malformed padding.
func TestPKCS7(t *testing.T) {
	padded := pkcs7Pad([]byte("abc"), 16)
	assert.Len(t, padded, 16)

	out, err := pkcs7Unpad(padded, 16)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), out)

	full := pkcs7Pad(make([]byte, 16), 16)
	assert.Len(t, full, 32)

	bad := append([]byte("abcdefghijklmno"), 0x03)
	_, err = pkcs7Unpad(bad, 16)
	assert.Error(t, err)

	_, err = pkcs7Unpad(append(make([]byte, 15), 0x00), 16)
	assert.Error(t, err)
}
