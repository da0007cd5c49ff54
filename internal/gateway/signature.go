package gateway

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
	"net/url"
	"sort"
)

// ComputeSignature builds the provider's webhook signature: HMAC-SHA1 over
// the public callback URL followed by each form key and value in key order,
// base64-encoded.
func ComputeSignature(secret, callbackURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write([]byte(callbackURL))
	for _, k := range keys {
		mac.Write([]byte(k))
		mac.Write([]byte(form.Get(k)))
	}
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// ValidateSignature checks a webhook signature in constant time.
func ValidateSignature(secret, callbackURL string, form url.Values, signature string) bool {
	expected := ComputeSignature(secret, callbackURL, form)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}
