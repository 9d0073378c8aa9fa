package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// SignatureHeader carries the HMAC signature on webhook requests, inbound and
// outbound alike.
const SignatureHeader = "X-Webhook-Signature"

// Signer computes and verifies the HMAC-SHA256 signatures the reservation
// system attaches to webhook payloads. An empty secret disables verification,
// which is how local development runs.
type Signer struct {
	secret []byte
}

func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Enabled reports whether a shared secret is configured.
func (s *Signer) Enabled() bool {
	return len(s.secret) > 0
}

// Sign returns the base64-encoded HMAC-SHA256 of body, or the empty string
// when no secret is configured.
func (s *Signer) Sign(body []byte) string {
	if !s.Enabled() {
		return ""
	}
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify checks the signature header against the raw body bytes exactly as
// received, before any parsing. Without a secret every payload passes; with a
// secret a missing or wrong header fails. The comparison is constant-time.
func (s *Signer) Verify(body []byte, header string) bool {
	if !s.Enabled() {
		return true
	}
	if header == "" {
		return false
	}
	return hmac.Equal([]byte(s.Sign(body)), []byte(header))
}
