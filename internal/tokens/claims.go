package tokens

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"github.com/golang-jwt/jwt/v5"
)

// Purpose tags a token so one kind cannot be replayed as another.
type Purpose string

const (
	PurposeAccess        Purpose = "access"
	PurposeRefresh       Purpose = "refresh"
	PurposeEmailVerify   Purpose = "email_verify"
	PurposePasswordReset Purpose = "password_reset"
)

func (p Purpose) valid() bool {
	switch p {
	case PurposeAccess, PurposeRefresh, PurposeEmailVerify, PurposePasswordReset:
		return true
	}
	return false
}

type Claims struct {
	Purpose Purpose `json:"purpose"`
	jwt.RegisteredClaims
}

// Fingerprint is the value kept server-side instead of the raw token.
func Fingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// FingerprintMatches compares in constant time.
func FingerprintMatches(token, stored string) bool {
	return subtle.ConstantTimeCompare([]byte(Fingerprint(token)), []byte(stored)) == 1
}
