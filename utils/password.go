package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"hash"
	"math/big"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const saltAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const saltLength = 16

// PBKDF2Iterations is the work factor used for new hashes. Stored hashes carry their own
// iteration count, so lowering it never breaks verification of older hashes.
var PBKDF2Iterations = 600000

// HashPassword returns a PBKDF2-SHA256 hash in the form
// "pbkdf2:sha256:<iterations>$<salt>$<hex digest>".
func HashPassword(password string) (string, error) {
	salt, err := randomSalt(saltLength)
	if err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	iterations := PBKDF2Iterations
	if iterations <= 0 {
		iterations = 1
	}
	digest := pbkdf2.Key([]byte(password), []byte(salt), iterations, sha256.Size, sha256.New)
	return fmt.Sprintf("pbkdf2:sha256:%d$%s$%s", iterations, salt, hex.EncodeToString(digest)), nil
}

// CheckPassword reports whether password matches the stored hash. Malformed hashes never match.
func CheckPassword(stored, password string) bool {
	parts := strings.Split(stored, "$")
	if len(parts) != 3 {
		return false
	}
	method, salt, want := parts[0], parts[1], parts[2]

	params := strings.Split(method, ":")
	if len(params) != 3 || params[0] != "pbkdf2" {
		return false
	}
	var newHash func() hash.Hash
	var size int
	switch params[1] {
	case "sha256":
		newHash, size = sha256.New, sha256.Size
	case "sha512":
		newHash, size = sha512.New, sha512.Size
	default:
		return false
	}
	iterations, err := strconv.Atoi(params[2])
	if err != nil || iterations <= 0 {
		return false
	}
	wantBytes, err := hex.DecodeString(want)
	if err != nil || len(wantBytes) != size {
		return false
	}

	got := pbkdf2.Key([]byte(password), []byte(salt), iterations, size, newHash)
	return subtle.ConstantTimeCompare(got, wantBytes) == 1
}

func randomSalt(n int) (string, error) {
	var sb strings.Builder
	sb.Grow(n)
	max := big.NewInt(int64(len(saltAlphabet)))
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		sb.WriteByte(saltAlphabet[idx.Int64()])
	}
	return sb.String(), nil
}
