package cryptox

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
)

const (
	keyLength  = 32 // Length of the derived key
	saltLength = 16 // Length of the random salt
)

// Params are the Argon2id cost parameters. They are deliberately NOT
// derivable from configuration defaults at verify time: the encoded hash
// carries its own parameters, so raising the cost only affects new hashes.
type Params struct {
	MemoryKiB   uint32 // Memory usage in KiB
	Iterations  uint32 // Iteration count
	Parallelism uint8  // Number of threads
}

// DefaultParams follows the OWASP recommendation for Argon2id.
var DefaultParams = Params{
	MemoryKiB:   19 * 1024,
	Iterations:  2,
	Parallelism: 1,
}

var (
	paramsMu      sync.RWMutex
	currentParams = DefaultParams
)

// SetParams installs the cost parameters used for all subsequent hashes.
// Called once at startup from config; zero fields keep their defaults.
func SetParams(p Params) {
	if p.MemoryKiB == 0 {
		p.MemoryKiB = DefaultParams.MemoryKiB
	}
	if p.Iterations == 0 {
		p.Iterations = DefaultParams.Iterations
	}
	if p.Parallelism == 0 {
		p.Parallelism = DefaultParams.Parallelism
	}

	paramsMu.Lock()
	currentParams = p
	paramsMu.Unlock()
}

func activeParams() Params {
	paramsMu.RLock()
	defer paramsMu.RUnlock()
	return currentParams
}

// HashPassword generates a PHC-format Argon2id hash string including salt and
// cost parameters.
func HashPassword(password string) (string, error) {
	p := activeParams()

	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey(
		[]byte(password+GetPepper()),
		salt,
		p.Iterations,
		p.MemoryKiB,
		p.Parallelism,
		keyLength,
	)

	b64Salt := base64.RawStdEncoding.EncodeToString(salt)
	b64Hash := base64.RawStdEncoding.EncodeToString(hash)

	return fmt.Sprintf(
		"$argon2id$v=19$m=%d,t=%d,p=%d$%s$%s",
		p.MemoryKiB,
		p.Iterations,
		p.Parallelism,
		b64Salt,
		b64Hash,
	), nil
}

// VerifyPassword compares a plaintext password against a PHC-style Argon2id
// hash. The comparison over the derived keys is constant-time; a mismatch is
// an error, never a panic.
func VerifyPassword(password, encodedHash string) error {
	parts := make([]string, 0, 6)
	start := 0
	for i := range len(encodedHash) {
		if encodedHash[i] == '$' {
			parts = append(parts, encodedHash[start:i])
			start = i + 1
		}
	}
	parts = append(parts, encodedHash[start:])

	// Expected structure: ["", "argon2id", "v=19", "m=X,t=Y,p=Z", "salt", "hash"]
	if len(parts) != 6 {
		return errors.New("invalid hash format: expected 6 parts")
	}
	if parts[1] != "argon2id" {
		return errors.New("invalid hash format: not argon2id")
	}
	if parts[2] != "v=19" {
		return errors.New("invalid hash format: wrong version")
	}

	var mem, iters uint32
	var par uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &iters, &par); err != nil {
		return fmt.Errorf("invalid hash format: failed to parse parameters: %w", err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return fmt.Errorf("invalid hash format: failed to decode salt: %w", err)
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return fmt.Errorf("invalid hash format: failed to decode hash: %w", err)
	}

	computed := argon2.IDKey(
		[]byte(password+GetPepper()),
		salt,
		iters,
		mem,
		par,
		uint32(len(expected)), // #nosec G115 - hash lengths are tiny
	)

	if subtle.ConstantTimeCompare(computed, expected) == 1 {
		return nil
	}
	return errors.New("password does not match")
}

// NeedsRehash reports whether encodedHash was produced with cost parameters
// weaker than the active ones. Callers rehash opportunistically after a
// successful verification, which is the only moment the plaintext is in hand.
func NeedsRehash(encodedHash string) bool {
	var mem, iters uint32
	var par uint8

	idx := 0
	for i := 0; i < 3; i++ {
		next := strings.IndexByte(encodedHash[idx:], '$')
		if next < 0 {
			return false
		}
		idx += next + 1
	}
	if _, err := fmt.Sscanf(encodedHash[idx:], "m=%d,t=%d,p=%d", &mem, &iters, &par); err != nil {
		return false
	}

	p := activeParams()
	return mem < p.MemoryKiB || iters < p.Iterations || par < p.Parallelism
}
