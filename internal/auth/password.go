// Package auth implements the administrator credential: a salted SHA-256
// password file and the HS256 JWT it exchanges for on successful login.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/nesall/ragd/internal/errors"
)

// DefaultPasswordFile is the relative path used when no override is given.
const DefaultPasswordFile = ".admin_password"

// DefaultPassword is the bootstrap password used when no env var or
// password file is present.
const DefaultPassword = "admin"

const saltLength = 12

const saltAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// AdminAuth owns the administrator credential: a single `<salt>$<hash>`
// line, loaded from an env var, a password file, or the built-in default,
// in that priority order.
type AdminAuth struct {
	path     string
	passHash string // "<salt>$<sha256hex>"
}

// Load reads the admin credential. Priority: ADMIN_PASSWORD env
// var, then the password file at path, then DefaultPassword.
func Load(path string) (*AdminAuth, error) {
	if path == "" {
		path = DefaultPasswordFile
	}
	a := &AdminAuth{path: path}

	if envPass := os.Getenv("ADMIN_PASSWORD"); envPass != "" {
		a.passHash = hashNewPassword(envPass)
		return a, nil
	}

	data, err := os.ReadFile(path)
	if err == nil {
		a.passHash = strings.TrimSpace(string(data))
		if !validPassHash(a.passHash) {
			return nil, errors.ConfigError(fmt.Sprintf("malformed admin password file %s", path), nil)
		}
		return a, nil
	}
	if !os.IsNotExist(err) {
		return nil, errors.IOError("failed to read admin password file", err)
	}

	a.passHash = hashNewPassword(DefaultPassword)
	return a, nil
}

// VerifyPassword reports whether password matches the stored credential,
// using a constant-time comparison of the hash portion.
func (a *AdminAuth) VerifyPassword(password string) bool {
	salt, hash := splitPassHash(a.passHash)
	if salt == "" {
		return false
	}
	candidate := hashPassword(password, salt)
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(hash)) == 1
}

// IsDefaultPassword reports whether the stored credential still matches
// DefaultPassword under the same salt.
func (a *AdminAuth) IsDefaultPassword() bool {
	salt, hash := splitPassHash(a.passHash)
	if salt == "" {
		return false
	}
	return hashPassword(DefaultPassword, salt) == hash
}

// SetPassword rehashes newPassword under a fresh salt and writes it to the
// password file with owner-only permissions.
func (a *AdminAuth) SetPassword(newPassword string) error {
	a.passHash = hashNewPassword(newPassword)
	if err := os.WriteFile(a.path, []byte(a.passHash), 0o600); err != nil {
		return errors.IOError("failed to write admin password file", err)
	}
	// os.WriteFile with an existing file leaves its prior mode; force it.
	if err := os.Chmod(a.path, 0o600); err != nil {
		return errors.IOError("failed to set admin password file permissions", err)
	}
	return nil
}

// FileModTime returns the password file's last-modified time. The second
// return is false when the file does not exist (credential from env var or
// default).
func (a *AdminAuth) FileModTime() (time.Time, bool) {
	info, err := os.Stat(a.path)
	if err != nil {
		return time.Time{}, false
	}
	return info.ModTime(), true
}

func hashNewPassword(password string) string {
	salt := newSalt(saltLength)
	return salt + "$" + hashPassword(password, salt)
}

func hashPassword(password, salt string) string {
	sum := sha256.Sum256([]byte(salt + password))
	return hex.EncodeToString(sum[:])
}

func splitPassHash(passHash string) (salt, hash string) {
	idx := strings.IndexByte(passHash, '$')
	if idx < 0 {
		return "", ""
	}
	return passHash[:idx], passHash[idx+1:]
}

func validPassHash(passHash string) bool {
	salt, hash := splitPassHash(passHash)
	return salt != "" && len(hash) == 64
}

func newSalt(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand failing is effectively unrecoverable; fall back to
		// a timestamp-derived salt rather than panicking.
		return fmt.Sprintf("%x", time.Now().UnixNano())[:n]
	}
	out := make([]byte, n)
	for i, v := range b {
		out[i] = saltAlphabet[int(v)%len(saltAlphabet)]
	}
	return string(out)
}
