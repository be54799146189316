// Package signature implements constant-time HMAC-SHA256 verification for
// client payment confirmations and gateway webhook payloads.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Verify reports whether signature is the hex HMAC-SHA256 of message under
// secret. The comparison is constant time after an equal-length check, so the
// secret cannot leak through timing. It never returns an error; malformed
// input is simply a failed verification.
func Verify(message []byte, secret, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(message)
	expected := hex.EncodeToString(mac.Sum(nil))
	if len(expected) != len(signature) {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(signature))
}

// VerifyPaymentSignature checks a client-submitted payment confirmation.
// The signed message is "{orderID}|{paymentID}" per the gateway contract.
func VerifyPaymentSignature(gatewayOrderID, gatewayPaymentID, sig, secret string) bool {
	return Verify([]byte(gatewayOrderID+"|"+gatewayPaymentID), secret, sig)
}

// VerifyWebhookSignature checks a gateway webhook against the raw request
// body. The raw bytes must be used: re-serializing the parsed JSON can change
// the content byte-for-byte and invalidate the signature.
func VerifyWebhookSignature(rawBody []byte, sig, secret string) bool {
	return Verify(rawBody, secret, sig)
}
