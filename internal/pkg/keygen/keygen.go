package keygen

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// Base62 alphabet for transaction ids (0-9, a-z, A-Z)
const idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// Uppercase alphanumeric alphabet for product keys (36 characters)
const keyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const (
	// TransactionIDLength is the length of generated transaction ids.
	TransactionIDLength = 10

	keySegments      = 4
	keySegmentLength = 4
)

// GenerateTransactionID creates a cryptographically secure random Base62
// transaction id.
func GenerateTransactionID() (string, error) {
	return secureString(idAlphabet, TransactionIDLength)
}

// GenerateProductKey creates a product key of four hyphen-joined groups of
// four characters, e.g. "A3F9-XK2M-QQ01-ZB7C". Keys are not checked for
// collisions; the keyspace (~1.8e24) makes that unnecessary and keys are not
// the uniqueness-bearing entity here.
func GenerateProductKey() (string, error) {
	segments := make([]string, 0, keySegments)
	for i := 0; i < keySegments; i++ {
		seg, err := secureString(keyAlphabet, keySegmentLength)
		if err != nil {
			return "", err
		}
		segments = append(segments, seg)
	}
	return strings.Join(segments, "-"), nil
}

// secureString draws length characters from the alphabet using rejection
// sampling to avoid modulo bias.
func secureString(alphabet string, length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("invalid length: %d", length)
	}

	// Largest multiple of the alphabet size below 256.
	maxRandomByte := byte(256 - (256 % len(alphabet)))

	out := make([]byte, length)
	buf := make([]byte, length*2)
	written := 0

	for written < length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to read secure random bytes: %w", err)
		}

		for _, b := range buf {
			if b >= maxRandomByte {
				continue
			}
			out[written] = alphabet[int(b)%len(alphabet)]
			written++
			if written == length {
				break
			}
		}
	}

	return string(out), nil
}
