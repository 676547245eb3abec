package models

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/sha3"
)

const (
	bcryptCost     = 10
	shake256Length = 16 // bytes → 32 hex chars
	jwtExpiration  = 30 * 24 * time.Hour
	secretAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	secretLength   = 64

	// SessionSubject is the only principal: whoever can read the data dir.
	SessionSubject = "local"

	// TokenFileName is written into the data dir for local clients.
	TokenFileName = "session.token"
)

// SessionClaims is the payload of a session token. H fingerprints the
// signing secret so a rotated secret revokes every outstanding token even if
// the old signature still verifies elsewhere.
type SessionClaims struct {
	H string `json:"h"`
	jwt.RegisteredClaims
}

// CreateSessionToken mints an HS256 token for the local subject.
func CreateSessionToken(secret string) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		H: Shake256Hex(secret, shake256Length),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   SessionSubject,
			ExpiresAt: jwt.NewNumericDate(now.Add(jwtExpiration)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// VerifySessionToken parses and validates a session token.
func VerifySessionToken(tokenString, secret string) (*SessionClaims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithSubject(SessionSubject),
	)
	token, err := parser.ParseWithClaims(tokenString, &SessionClaims{}, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.H != Shake256Hex(secret, shake256Length) {
		return nil, errors.New("token was issued for a different secret")
	}
	return claims, nil
}

// WriteTokenFile stores token in dataDir with owner-only permissions and
// returns the file path.
func WriteTokenFile(dataDir, token string) (string, error) {
	path := filepath.Join(dataDir, TokenFileName)
	if err := os.WriteFile(path, []byte(token+"\n"), 0600); err != nil {
		return "", fmt.Errorf("write token file: %w", err)
	}
	return path, nil
}

// Shake256Hex computes SHAKE256 of data and returns the first `length` bytes as hex.
func Shake256Hex(data string, length int) string {
	if data == "" {
		return ""
	}
	h := sha3.NewShake256()
	h.Write([]byte(data))
	out := make([]byte, length)
	h.Read(out)
	return hex.EncodeToString(out)
}

// GenSecret generates a cryptographically random alphanumeric string.
func GenSecret(length int) (string, error) {
	b := make([]byte, length)
	for i := range b {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(secretAlphabet))))
		if err != nil {
			return "", err
		}
		b[i] = secretAlphabet[n.Int64()]
	}
	return string(b), nil
}
