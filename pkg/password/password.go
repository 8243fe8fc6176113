// Package password provides the password-verification primitive the engine
// delegates to: hashing a plaintext password into an
// opaque string for User.PasswordHash, and checking a plaintext password
// against a previously produced hash in constant time. The rolemanager
// package never sees a raw password outside of this boundary.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Verifier hashes and checks passwords. Argon2Verifier is the only
// implementation shipped here; it is an interface so a caller with an
// existing credential store (e.g. migrating off bcrypt) can supply their
// own without the engine's authenticate path changing.
type Verifier interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, encodedHash string) (bool, error)
}

// params are the Argon2id cost parameters: 64 MiB memory, 3 iterations,
// 2 lanes, matching current OWASP guidance for interactive login paths.
type params struct {
	memory      uint32
	iterations  uint32
	parallelism uint8
	saltLength  uint32
	keyLength   uint32
}

var defaultParams = params{
	memory:      64 * 1024,
	iterations:  3,
	parallelism: 2,
	saltLength:  16,
	keyLength:   32,
}

// Argon2Verifier implements Verifier with golang.org/x/crypto/argon2,
// encoding salt and derived key into one self-describing string so
// User.PasswordHash (a single opaque column) needs no sibling
// salt column.
type Argon2Verifier struct {
	p params
}

// NewArgon2Verifier builds a Verifier using the package's default cost
// parameters.
func NewArgon2Verifier() *Argon2Verifier {
	return &Argon2Verifier{p: defaultParams}
}

const encodedFormat = "$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s"

// Hash derives a key from plaintext with a fresh random salt and returns
// the PHC-style encoded string stored verbatim as User.PasswordHash.
func (a *Argon2Verifier) Hash(plaintext string) (string, error) {
	salt := make([]byte, a.p.saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(plaintext), salt, a.p.iterations, a.p.memory, a.p.parallelism, a.p.keyLength)

	b64Salt := base64.RawStdEncoding.EncodeToString(salt)
	b64Key := base64.RawStdEncoding.EncodeToString(key)
	return fmt.Sprintf(encodedFormat, argon2.Version, a.p.memory, a.p.iterations, a.p.parallelism, b64Salt, b64Key), nil
}

// Verify reports whether plaintext produces encodedHash, comparing derived
// keys in constant time so a timing side channel cannot leak how many
// leading bytes matched.
func (a *Argon2Verifier) Verify(plaintext, encodedHash string) (bool, error) {
	// fmt.Sscanf can't parse this format directly: %s greedily consumes
	// every non-space rune, including the literal '$' separating the two
	// base64 fields, so the fields are split by hand instead.
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return false, fmt.Errorf("malformed password hash")
	}

	var version int
	var memory, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, fmt.Errorf("malformed password hash: %w", err)
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return false, fmt.Errorf("malformed password hash: %w", err)
	}
	b64Salt, b64Key := parts[4], parts[5]

	if version != argon2.Version {
		return false, fmt.Errorf("unsupported argon2 version %d", version)
	}

	salt, err := base64.RawStdEncoding.DecodeString(b64Salt)
	if err != nil {
		return false, fmt.Errorf("decode salt: %w", err)
	}
	key, err := base64.RawStdEncoding.DecodeString(b64Key)
	if err != nil {
		return false, fmt.Errorf("decode key: %w", err)
	}

	computed := argon2.IDKey([]byte(plaintext), salt, iterations, memory, parallelism, uint32(len(key)))
	return subtle.ConstantTimeCompare(key, computed) == 1, nil
}

// LooksHashed is a cheap sanity check used by seed/import tooling to avoid
// double-hashing an already-encoded value.
func LooksHashed(s string) bool {
	return strings.HasPrefix(s, "$argon2id$")
}
