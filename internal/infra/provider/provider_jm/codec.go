package provider_jm

import (
	"bytes"
	"crypto/aes"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"

	"github.com/goccy/go-json"

	"favorites-sync-service/internal/domain"
)

// errUnauthorized marks a 401 from either the HTTP status or the envelope code.
var errUnauthorized = fmt.Errorf("session rejected: %w", domain.ErrAuthentication)

// Signature is the per-request metadata derived from the request timestamp.
type Signature struct {
	Timestamp  int64
	Token      string // hex(md5(ts + token secret))
	TokenParam string // "ts,version"
}

// Headers returns the signature as request headers.
func (s Signature) Headers() map[string]string {
	return map[string]string{
		"token":      s.Token,
		"tokenparam": s.TokenParam,
	}
}

// envelope is the outer, unencrypted response body.
type envelope struct {
	Code     int             `json:"code"`
	ErrorMsg string          `json:"errorMsg"`
	Data     json.RawMessage `json:"data"`
}

// APIError is a non-success envelope code other than 401.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api returned code %d: %s", e.Code, e.Message)
}

// Codec signs requests and decrypts responses of the encrypted API.
// The cipher key is hex(md5(ts + data secret)) used as 32 raw ASCII bytes,
// so the block cipher is AES-256 in ECB mode with PKCS#7 padding.
type Codec struct {
	tokenSecret string
	dataSecret  string
	version     string
}

// NewCodec creates a codec for the given secrets and client version.
func NewCodec(tokenSecret, dataSecret, version string) *Codec {
	return &Codec{
		tokenSecret: tokenSecret,
		dataSecret:  dataSecret,
		version:     version,
	}
}

// Sign computes the request signature for timestamp ts (unix seconds).
func (c *Codec) Sign(ts int64) Signature {
	t := strconv.FormatInt(ts, 10)

	return Signature{
		Timestamp:  ts,
		Token:      md5Hex(t + c.tokenSecret),
		TokenParam: t + "," + c.version,
	}
}

// Decode unwraps the envelope of a response signed at ts and returns the
// decrypted JSON payload.
func (c *Codec) Decode(ts int64, body []byte) ([]byte, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decoding envelope: %w: %v", domain.ErrProtocol, err)
	}

	switch env.Code {
	case 200:
	case 401:
		return nil, errUnauthorized
	default:
		return nil, &APIError{Code: env.Code, Message: env.ErrorMsg}
	}

	var payload string
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		return nil, fmt.Errorf("envelope data is not a string: %w", domain.ErrProtocol)
	}

	return c.Decrypt(ts, payload)
}

// Decrypt base64-decodes and decrypts payload, then checks the plaintext is JSON.
func (c *Codec) Decrypt(ts int64, payload string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("base64 payload: %w: %v", domain.ErrProtocol, err)
	}

	block, err := aes.NewCipher(c.key(ts))
	if err != nil {
		return nil, fmt.Errorf("cipher: %w: %v", domain.ErrProtocol, err)
	}

	size := block.BlockSize()
	if len(raw) == 0 || len(raw)%size != 0 {
		return nil, fmt.Errorf("ciphertext length %d: %w", len(raw), domain.ErrProtocol)
	}

	plain := make([]byte, len(raw))
	for off := 0; off < len(raw); off += size {
		block.Decrypt(plain[off:off+size], raw[off:off+size])
	}

	plain, err = pkcs7Unpad(plain, size)
	if err != nil {
		return nil, fmt.Errorf("unpad: %w: %v", domain.ErrProtocol, err)
	}
	if !json.Valid(plain) {
		return nil, fmt.Errorf("decrypted payload is not JSON: %w", domain.ErrProtocol)
	}

	return plain, nil
}

// Encrypt is the inverse of Decrypt. Used by the local mock server and tests.
func (c *Codec) Encrypt(ts int64, plain []byte) (string, error) {
	block, err := aes.NewCipher(c.key(ts))
	if err != nil {
		return "", err
	}

	size := block.BlockSize()
	padded := pkcs7Pad(plain, size)
	out := make([]byte, len(padded))
	for off := 0; off < len(padded); off += size {
		block.Encrypt(out[off:off+size], padded[off:off+size])
	}

	return base64.StdEncoding.EncodeToString(out), nil
}

// Envelope builds a complete success response body for payload.
func (c *Codec) Envelope(ts int64, payload any) ([]byte, error) {
	plain, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	data, err := c.Encrypt(ts, plain)
	if err != nil {
		return nil, err
	}

	return json.Marshal(map[string]any{"code": 200, "data": data})
}

func (c *Codec) key(ts int64) []byte {
	return []byte(md5Hex(strconv.FormatInt(ts, 10) + c.dataSecret))
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func pkcs7Pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(append([]byte{}, b...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, size int) ([]byte, error) {
	n := int(b[len(b)-1])
	if n == 0 || n > size || n > len(b) {
		return nil, errors.New("invalid padding length")
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, errors.New("invalid padding bytes")
		}
	}

	return b[:len(b)-n], nil
}
