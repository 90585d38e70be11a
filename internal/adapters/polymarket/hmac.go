package polymarket

// hmac.go — L2 request signing for the CLOB API.
//
// Canonical message per @polymarket/clob-client:
//   message = timestamp + method + requestPath + body(optional)
// signed with HMAC-SHA256 over the base64-decoded API secret, emitted as
// URL-safe base64.

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
)

// sanitizeBase64Secret accepts base64url secrets ('-' -> '+', '_' -> '/'),
// drops any non-base64 chars and restores padding.
func sanitizeBase64Secret(secret string) string {
	secret = strings.TrimSpace(secret)
	secret = strings.ReplaceAll(secret, "-", "+")
	secret = strings.ReplaceAll(secret, "_", "/")

	var b strings.Builder
	b.Grow(len(secret))
	for i := 0; i < len(secret); i++ {
		c := secret[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			b.WriteByte(c)
		case c == '+' || c == '/' || c == '=':
			b.WriteByte(c)
		}
	}
	out := b.String()
	if rem := len(out) % 4; rem != 0 {
		out += strings.Repeat("=", 4-rem)
	}
	return out
}

func buildHMACSignature(secret string, timestamp int64, method, requestPath string, body []byte) (string, error) {
	var sb strings.Builder
	sb.Grow(32 + len(method) + len(requestPath) + len(body))
	sb.WriteString(fmt.Sprintf("%d", timestamp))
	sb.WriteString(method)
	sb.WriteString(requestPath)
	if body != nil {
		sb.Write(body)
	}

	decoded, err := base64.StdEncoding.DecodeString(sanitizeBase64Secret(secret))
	if err != nil {
		return "", fmt.Errorf("decode base64 secret: %w", err)
	}

	mac := hmac.New(sha256.New, decoded)
	_, _ = mac.Write([]byte(sb.String()))
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	sig = strings.ReplaceAll(sig, "+", "-")
	sig = strings.ReplaceAll(sig, "/", "_")
	return sig, nil
}
