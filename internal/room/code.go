package room

import (
	"crypto/rand"
	"fmt"
)

// codeAlphabet omits letters that read ambiguously on a shared
// screen (I, L, O).
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ"

// CodeLength is the fixed length of a room code.
const CodeLength = 4

// NewCode generates a random room code. Uniqueness is not guaranteed
// here; the creator checks the store and regenerates on collision.
func NewCode() (string, error) {
	buf := make([]byte, CodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate room code: %w", err)
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}

// ValidCode reports whether a string is a well-formed room code.
func ValidCode(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for _, c := range code {
		found := false
		for _, a := range codeAlphabet {
			if c == a {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
