package cryptoutils

import (
	"crypto/rand"
	"errors"
	"math/big"
)

const (
	lowerChars  = "abcdefghijkmnopqrstuvwxyz"
	upperChars  = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	digitChars  = "23456789"
	symbolChars = "!#%+-=?@_"

	// DefaultPasswordLength is the length of generated local admin passwords.
	DefaultPasswordLength = 20
)

var passwordClasses = []string{lowerChars, upperChars, digitChars, symbolChars}

// GeneratePassword returns a random password of the given length that
// contains at least one character of every class (lower, upper, digit,
// symbol), which satisfies the default Windows complexity policy.
// Ambiguous characters (0/O, 1/l/I) are excluded.
func GeneratePassword(length int) (string, error) {
	if length < len(passwordClasses) {
		return "", errors.New("password length too short to cover all character classes")
	}

	all := lowerChars + upperChars + digitChars + symbolChars
	out := make([]byte, length)

	for i, class := range passwordClasses {
		c, err := randomChar(class)
		if err != nil {
			return "", err
		}
		out[i] = c
	}
	for i := len(passwordClasses); i < length; i++ {
		c, err := randomChar(all)
		if err != nil {
			return "", err
		}
		out[i] = c
	}

	// Fisher-Yates so the guaranteed characters are not always first.
	for i := length - 1; i > 0; i-- {
		j, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return "", err
		}
		out[i], out[j.Int64()] = out[j.Int64()], out[i]
	}

	return string(out), nil
}

func randomChar(charset string) (byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
	if err != nil {
		return 0, err
	}
	return charset[n.Int64()], nil
}
