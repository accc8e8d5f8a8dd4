package challenge

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
)

var ten = big.NewInt(10)

// newCode draws a uniformly random numeric code from crypto/rand.
func newCode(digits int) (string, error) {
	if digits < 4 || digits > 10 {
		return "", errors.New("challenge: code digits must be within [4, 10]")
	}

	var b strings.Builder
	b.Grow(digits)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}
