// Package auth handles password hashing and the session cookie plumbing.
//
// PASSWORD SCHEMES:
// Two schemes are supported and picked once at startup (PASSWORD_SCHEME):
//
//   - "sha256" (default): hex-encoded SHA-256 of the password, no salt. This is
//     the format every existing users row was written in, so it stays the
//     default. It is WEAK: identical passwords produce identical hashes and a
//     GPU cracks SHA-256 at billions of guesses per second. Treat it as a
//     known limitation of the stored-credential format.
//   - "bcrypt": salted, slow, self-describing hashes from x/crypto/bcrypt.
//     Switching schemes invalidates every stored credential, which is why it
//     is opt-in rather than automatic.
//
// Hash format for bcrypt:
//
//	$2a$12$<22-char salt><31-char hash>
//	 ^   ^
//	 |   cost
//	 version
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Supported values for PASSWORD_SCHEME.
const (
	SchemeSHA256 = "sha256"
	SchemeBcrypt = "bcrypt"
)

// DefaultBcryptCost is the bcrypt work factor used when none is configured.
const DefaultBcryptCost = 12

// ErrInvalidPassword is returned by Verify when the plaintext does not match.
var ErrInvalidPassword = errors.New("auth: invalid password")

// Hasher hashes and verifies passwords in one stored format.
type Hasher interface {
	Hash(plaintext string) (string, error)
	// Verify returns nil on a match and ErrInvalidPassword on a mismatch.
	Verify(hash, plaintext string) error
}

// NewHasher returns the Hasher for scheme. cost only applies to bcrypt;
// zero means DefaultBcryptCost.
func NewHasher(scheme string, cost int) (Hasher, error) {
	switch scheme {
	case "", SchemeSHA256:
		return SHA256Hasher{}, nil
	case SchemeBcrypt:
		if cost == 0 {
			cost = DefaultBcryptCost
		}
		if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
			return nil, fmt.Errorf("auth: bcrypt cost %d out of range [%d, %d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
		}
		return &BcryptHasher{cost: cost}, nil
	default:
		return nil, fmt.Errorf("auth: unknown password scheme %q", scheme)
	}
}

// SHA256Hasher stores hex(sha256(password)). See the package doc before
// using it for anything new.
type SHA256Hasher struct{}

func (SHA256Hasher) Hash(plaintext string) (string, error) {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:]), nil
}

// Verify compares in constant time so response latency does not reveal how
// many leading hex digits matched.
func (h SHA256Hasher) Verify(hash, plaintext string) error {
	want, _ := h.Hash(plaintext)
	if subtle.ConstantTimeCompare([]byte(hash), []byte(want)) != 1 {
		return ErrInvalidPassword
	}
	return nil
}

// BcryptHasher provides bcrypt hashing and verification.
type BcryptHasher struct {
	cost int
}

// Hash rejects passwords over 72 bytes; bcrypt would silently truncate them.
func (b *BcryptHasher) Hash(plaintext string) (string, error) {
	if len(plaintext) > 72 {
		return "", fmt.Errorf("auth: password must be 72 bytes or fewer")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), b.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}
	return string(hashed), nil
}

func (b *BcryptHasher) Verify(hash, plaintext string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrInvalidPassword
		}
		return fmt.Errorf("auth: comparing password hash: %w", err)
	}
	return nil
}
