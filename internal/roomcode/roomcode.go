// Package roomcode generates the short human-typeable room identifiers shown
// in QR codes and shared between hosts and mobiles.
package roomcode

import (
	"crypto/rand"
	"math/big"
	"strings"
)

const (
	Length = 6
	// Alphabet drops the ambiguous characters I, O, 0 and 1.
	Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// Generate returns a random code of Length characters from Alphabet.
func Generate() (string, error) {
	code := make([]byte, Length)
	max := big.NewInt(int64(len(Alphabet)))
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		code[i] = Alphabet[n.Int64()]
	}
	return string(code), nil
}

// MustGenerate is Generate for callers that cannot recover from a broken
// system random source.
func MustGenerate() string {
	code, err := Generate()
	if err != nil {
		panic("roomcode: " + err.Error())
	}
	return code
}

// Valid reports whether s looks like a generated code.
func Valid(s string) bool {
	if len(s) != Length {
		return false
	}
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(Alphabet, s[i]) < 0 {
			return false
		}
	}
	return true
}

// Normalize upper-cases user input so codes typed by hand still match.
func Normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
