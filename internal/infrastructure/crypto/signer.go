package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	domainErrors "github.com/wekeepgrowing/qris-gateway/internal/domain/errors"
)

// Encoding is the textual form of an HMAC digest
type Encoding string

const (
	EncodingHex    Encoding = "hex"
	EncodingBase64 Encoding = "base64"
)

// SignatureService computes keyed message signatures
type SignatureService interface {
	Sign(message, secret string) string
	Encoding() Encoding
}

// HMACSigner signs messages with HMAC-SHA256
type HMACSigner struct {
	encoding Encoding
}

// NewHMACSigner creates a signer for the given output encoding
func NewHMACSigner(encoding string) (*HMACSigner, error) {
	switch enc := Encoding(strings.ToLower(encoding)); enc {
	case EncodingHex, EncodingBase64:
		return &HMACSigner{encoding: enc}, nil
	default:
		return nil, fmt.Errorf("%w: %q", domainErrors.ErrUnsupportedEncoding, encoding)
	}
}

// Sign returns HMAC-SHA256(secret, message) in the configured encoding.
// The output is deterministic for the same message and secret.
func (s *HMACSigner) Sign(message, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return s.encode(mac.Sum(nil))
}

func (s *HMACSigner) Encoding() Encoding {
	return s.encoding
}

func (s *HMACSigner) encode(digest []byte) string {
	if s.encoding == EncodingBase64 {
		return base64.StdEncoding.EncodeToString(digest)
	}
	return hex.EncodeToString(digest)
}

// SHA256Hex returns the lowercase hex SHA-256 digest of data
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// WebhookVerifier checks callback signatures against a shared secret
type WebhookVerifier struct {
	signer *HMACSigner
	secret string
}

// NewWebhookVerifier creates a verifier for signatures over the raw request body
func NewWebhookVerifier(secret, encoding string) (*WebhookVerifier, error) {
	signer, err := NewHMACSigner(encoding)
	if err != nil {
		return nil, err
	}
	return &WebhookVerifier{signer: signer, secret: secret}, nil
}

// Verify compares the expected signature of body with the received one in constant time
func (v *WebhookVerifier) Verify(body []byte, signature string) error {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return domainErrors.ErrInvalidWebhookSignature
	}

	expected := v.signer.Sign(string(body), v.secret)
	received := signature
	if v.signer.encoding == EncodingHex {
		received = strings.ToLower(received)
	}

	if !hmac.Equal([]byte(expected), []byte(received)) {
		return domainErrors.ErrInvalidWebhookSignature
	}
	return nil
}
