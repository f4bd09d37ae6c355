package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMissingSecret     = errors.New("webhook: signing secret not configured")
	ErrMissingSignature  = errors.New("webhook: signature header missing")
	ErrSignatureMismatch = errors.New("webhook: signature mismatch")
)

// Verify checks that signature is the hex HMAC-SHA256 of body under secret.
// The signature may carry a "sha256=" prefix and either hex case.
func Verify(secret string, body []byte, signature string) error {
	if secret == "" {
		return ErrMissingSecret
	}
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return ErrMissingSignature
	}
	if len(signature) > 7 && strings.EqualFold(signature[:7], "sha256=") {
		signature = signature[7:]
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("%w: invalid hex", ErrSignatureMismatch)
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if subtle.ConstantTimeCompare(mac.Sum(nil), got) != 1 {
		return ErrSignatureMismatch
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
