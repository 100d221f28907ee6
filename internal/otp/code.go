// Package otp generates verification codes and derives their stored digests.
package otp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
)

const (
	// Digits is the numeric code alphabet.
	Digits = "0123456789"
	// Alphanumeric omits characters that are easy to confuse when read aloud
	// or typed from an email (0/O, 1/I/L).
	Alphanumeric = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

	MinLength = 6
	MaxLength = 12

	pepperSize = 32
)

var ErrInvalidLength = errors.New("otp length out of range")

// NewCode draws length symbols uniformly from alphabet using r.
func NewCode(r io.Reader, alphabet string, length int) (string, error) {
	if length < MinLength || length > MaxLength {
		return "", ErrInvalidLength
	}
	if alphabet == "" {
		return "", errors.New("otp alphabet is empty")
	}
	if r == nil {
		r = rand.Reader
	}

	var b strings.Builder
	b.Grow(length)

	max := big.NewInt(int64(len(alphabet)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(r, max)
		if err != nil {
			return "", fmt.Errorf("otp random: %w", err)
		}
		b.WriteByte(alphabet[n.Int64()])
	}
	return b.String(), nil
}

// Normalize trims a submitted code and folds it to the alphabet's case.
func Normalize(code, alphabet string) string {
	code = strings.TrimSpace(code)
	if alphabet == Alphanumeric {
		code = strings.ToUpper(code)
	}
	return code
}

// WellFormed reports whether code has the expected length and only uses
// symbols from alphabet.
func WellFormed(code, alphabet string, length int) bool {
	if len(code) != length {
		return false
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(alphabet, code[i]) < 0 {
			return false
		}
	}
	return true
}

// Digest binds code to the purpose and email it was issued for. A record
// copied to another key therefore never verifies.
func Digest(pepper []byte, purpose byte, email, code string) [32]byte {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte{purpose})
	mac.Write([]byte(email))
	mac.Write([]byte{0})
	mac.Write([]byte(code))

	var out [32]byte
	copy(out[:], mac.Sum(nil))
	return out
}

// NewPepper returns fresh HMAC key material.
func NewPepper(r io.Reader) ([]byte, error) {
	if r == nil {
		r = rand.Reader
	}
	pepper := make([]byte, pepperSize)
	if _, err := io.ReadFull(r, pepper); err != nil {
		return nil, err
	}
	return pepper, nil
}
