// Package password hashes and verifies user passwords.
package password

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Cost is the bcrypt work factor for new hashes.
const Cost = 10

// Bounds for legacy argon2id parameters read from stored hashes.
const (
	argon2MaxMemory  = 256 * 1024 // KiB
	argon2MaxTime    = 16
	argon2MaxThreads = 16
	argon2MinKeyLen  = 16
	argon2MaxKeyLen  = 64
)

// ErrTooLong is returned for passwords bcrypt cannot hash.
var ErrTooLong = errors.New("password exceeds 72 bytes")

// Hash returns a bcrypt hash of password.
func Hash(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), Cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", ErrTooLong
	}
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Verify reports whether password matches encoded. Accounts imported from
// the previous auth stack may still carry $argon2id$ hashes.
func Verify(password, encoded string) bool {
	if strings.HasPrefix(encoded, "$argon2id$") {
		return verifyArgon2id(password, encoded)
	}
	return bcrypt.CompareHashAndPassword([]byte(encoded), []byte(password)) == nil
}

func verifyArgon2id(password, encoded string) bool {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[2] != "v=19" {
		return false
	}

	var memory, timeCost uint64
	var threads uint64
	for _, param := range strings.Split(parts[3], ",") {
		key, value, ok := strings.Cut(param, "=")
		if !ok {
			return false
		}
		var err error
		switch key {
		case "m":
			memory, err = strconv.ParseUint(value, 10, 32)
		case "t":
			timeCost, err = strconv.ParseUint(value, 10, 32)
		case "p":
			threads, err = strconv.ParseUint(value, 10, 8)
		default:
			return false
		}
		if err != nil {
			return false
		}
	}
	if memory == 0 || memory > argon2MaxMemory ||
		timeCost == 0 || timeCost > argon2MaxTime ||
		threads == 0 || threads > argon2MaxThreads {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	hash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(hash) < argon2MinKeyLen || len(hash) > argon2MaxKeyLen {
		return false
	}

	check := argon2.IDKey([]byte(password), salt, uint32(timeCost), uint32(memory), uint8(threads), uint32(len(hash)))
	return subtle.ConstantTimeCompare(hash, check) == 1
}
