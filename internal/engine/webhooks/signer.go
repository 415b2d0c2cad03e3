package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strconv"
	"time"
)

// Sign computes the hex HMAC-SHA256 over "<timestamp>.<body>". Binding the
// timestamp into the MAC means a logged body + signature pair cannot be
// replayed later under a fresh timestamp.
func Sign(secret string, body []byte, timestamp int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks the signature and rejects timestamps outside the tolerance
// window. Comparison is constant time.
func Verify(secret string, body []byte, signature string, timestamp int64, now time.Time, tolerance time.Duration) bool {
	age := now.Unix() - timestamp
	if age < 0 {
		age = -age
	}
	if time.Duration(age)*time.Second > tolerance {
		return false
	}

	expected := Sign(secret, body, timestamp)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// VerifyStaticToken is the provider-mandated subscribe handshake: a plain
// shared-token equality check, still constant time.
func VerifyStaticToken(expected, got string) bool {
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(got)) == 1
}

// VerifyBodySignature checks a GitHub-style "sha256=<hex>" HMAC of the raw
// request body, used for the provider's signed data-delivery path.
func VerifyBodySignature(secret string, body []byte, header string) bool {
	const prefix = "sha256="
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(header[len(prefix):]))
}

// PayloadHash fingerprints a delivery body for the attempt log.
func PayloadHash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
