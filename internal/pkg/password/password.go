package password

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrTooLong is returned for inputs bcrypt would silently truncate
var ErrTooLong = errors.New("password longer than 72 bytes")

// Cost is the bcrypt work factor. Tests lower it to bcrypt.MinCost.
var Cost = 12

// Hash hashes password using bcrypt
func Hash(plain string) (string, error) {
	if len(plain) > 72 {
		return "", ErrTooLong
	}
	b, err := bcrypt.GenerateFromPassword([]byte(plain), Cost)
	return string(b), err
}

// Verify compares password with hash
func Verify(plain, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
