package notify

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// SignatureHeader carries the payload signature on outgoing webhooks.
const SignatureHeader = "X-Earn-Signature"

// TimestampHeader carries the unix timestamp the signature covers.
const TimestampHeader = "X-Earn-Timestamp"

// Sign computes the hex HMAC-SHA256 of "<unix_ts>.<body>" under the
// endpoint secret. Receivers recompute it to authenticate the payload.
func Sign(secret string, unixTS int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(unixTS, 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether sig is a valid signature for the payload.
func Verify(secret string, unixTS int64, body []byte, sig string) bool {
	expected := Sign(secret, unixTS, body)
	return hmac.Equal([]byte(expected), []byte(sig))
}

// VerifyWithin additionally rejects signatures whose timestamp falls
// outside maxAge of now, in either direction. Receivers use this window
// to shut out replayed deliveries.
func VerifyWithin(secret string, unixTS int64, body []byte, sig string, now time.Time, maxAge time.Duration) bool {
	if maxAge > 0 {
		age := now.Unix() - unixTS
		if age > int64(maxAge.Seconds()) || -age > int64(maxAge.Seconds()) {
			return false
		}
	}
	return Verify(secret, unixTS, body, sig)
}
