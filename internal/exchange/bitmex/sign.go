package bitmex

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strconv"
)

// Sign computes the hex HMAC-SHA256 request signature over the canonical
// message method+path+expires, with "?"+encoded params spliced in before the
// expiry when params are present. url.Values encoding sorts keys, so the
// signature does not depend on parameter insertion order.
func Sign(secret, method, path string, params url.Values, expires int64) string {
	message := method + path
	if encoded := params.Encode(); encoded != "" {
		message += "?" + encoded
	}
	message += strconv.FormatInt(expires, 10)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}
