package sigv4gate

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
)

const (
	accessKeyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"
	generatedKeyLen   = 16
	secretKeyBytes    = 30

	minAccessKeyLen = 3
	maxAccessKeyLen = 128
)

// IsValidAccessKey validates that an access key can be used in a SigV4
// credential scope. It checks that the key:
//   - is between 3 and 128 characters long
//   - contains only ASCII letters, digits, '-' and '_'
//
// A '/' would split the credential scope, so it is never allowed.
func IsValidAccessKey(k string) bool {
	if len(k) < minAccessKeyLen || len(k) > maxAccessKeyLen {
		return false
	}

	for i := 0; i < len(k); i++ {
		c := k[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return false
		}
	}

	return true
}

// GenerateAccessKey returns a random access key with the given prefix,
// in the style of "AKIA..." IAM keys.
func GenerateAccessKey(prefix string) (string, error) {
	buf := make([]byte, generatedKeyLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate access key: %w", err)
	}

	var b strings.Builder
	b.WriteString(prefix)
	for _, v := range buf {
		b.WriteByte(accessKeyAlphabet[int(v)%len(accessKeyAlphabet)])
	}
	return b.String(), nil
}

// GenerateSecretKey returns a random 40 character secret key.
func GenerateSecretKey() (string, error) {
	buf := make([]byte, secretKeyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate secret key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}
