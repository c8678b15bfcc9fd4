package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sign returns the lowercase hex HMAC-SHA256 of payload under secret, the
// format the processor uses for both checkout and webhook signatures.
func Sign(payload []byte, secret string) string {
	m := hmac.New(sha256.New, []byte(secret))
	m.Write(payload)
	return hex.EncodeToString(m.Sum(nil))
}

// Verify reports whether signature is the HMAC of payload under secret.
// The comparison is constant-time over the decoded digest.
func Verify(payload []byte, signature, secret string) bool {
	if secret == "" || signature == "" {
		return false
	}
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false
	}
	m := hmac.New(sha256.New, []byte(secret))
	m.Write(payload)
	return hmac.Equal(got, m.Sum(nil))
}

// ConfirmationPayload is the canonical string signed for a checkout
// confirmation.
func ConfirmationPayload(orderID, paymentID string) []byte {
	return []byte(orderID + "|" + paymentID)
}

// Verifier holds the two shared secrets: the key secret signs checkout
// confirmations, the webhook secret signs raw webhook bodies.
type Verifier struct {
	keySecret     string
	webhookSecret string
}

func NewVerifier(keySecret, webhookSecret string) Verifier {
	return Verifier{keySecret: keySecret, webhookSecret: webhookSecret}
}

func (v Verifier) VerifyConfirmation(orderID, paymentID, signature string) error {
	if orderID == "" || paymentID == "" {
		return ErrInvalidSignature
	}
	if !Verify(ConfirmationPayload(orderID, paymentID), signature, v.keySecret) {
		return ErrInvalidSignature
	}
	return nil
}

// VerifyWebhook checks the signature over the body exactly as received.
func (v Verifier) VerifyWebhook(rawBody []byte, signature string) error {
	if !Verify(rawBody, signature, v.webhookSecret) {
		return ErrInvalidSignature
	}
	return nil
}
