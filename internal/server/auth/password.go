package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// PasswordCost is the bcrypt work factor used for every stored credential.
const PasswordCost = bcrypt.DefaultCost

// HashError reports that hashing or verification could not be carried out.
// It never means "wrong password".
type HashError struct {
	Op  string
	Err error
}

func (e *HashError) Error() string {
	return fmt.Sprintf("password %s: %v", e.Op, e.Err)
}

func (e *HashError) Unwrap() error {
	return e.Err
}

// HashPassword returns a salted bcrypt digest of the plaintext.
func HashPassword(plaintext string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(plaintext), PasswordCost)
	if err != nil {
		return "", &HashError{Op: "hash", Err: err}
	}
	return string(h), nil
}

// VerifyPassword compares plaintext against a stored digest.
// A mismatch is (false, nil); a malformed digest is a *HashError.
func VerifyPassword(plaintext, hash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, &HashError{Op: "verify", Err: err}
	}
}
