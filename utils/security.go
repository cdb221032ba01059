package utils

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// VerifyHMAC checks a hex encoded HMAC-SHA256 signature of message.
func VerifyHMAC(message, secret, sign string) bool {
	expectedSign := GenerateHMAC(message, secret)
	return hmac.Equal([]byte(expectedSign), []byte(sign))
}

// GenerateHMAC returns the hex encoded HMAC-SHA256 of message keyed by secret.
func GenerateHMAC(message, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}
