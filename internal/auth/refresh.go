package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Refresh tokens are not signed JWTs: they are JSON claim sets sealed with
// AES-256-GCM under a key derived from the shared secret. The wire form is
// base64url(nonce || ciphertext).

// tokenClaims is the claim set shared by access and refresh tokens.
type tokenClaims struct {
	Subject   string `json:"sub"`
	Issuer    string `json:"iss"`
	ExpiresAt int64  `json:"exp"`
}

func mapToTokenClaims(m map[string]interface{}) *tokenClaims {
	c := &tokenClaims{}
	if s, ok := m["sub"].(string); ok {
		c.Subject = s
	}
	if s, ok := m["iss"].(string); ok {
		c.Issuer = s
	}
	if f, ok := m["exp"].(float64); ok {
		c.ExpiresAt = int64(f)
	}
	return c
}

// validateRefresh decrypts and checks a refresh token, applying the same
// issuer/expiry rules as access tokens. Returns nil on any failure.
func (a *Authenticator) validateRefresh(raw string) *tokenClaims {
	plaintext, err := openRefreshToken(a.cfg.Secret, raw)
	if err != nil {
		a.log.Debug("refresh token decrypt failed", zap.Error(err))
		return nil
	}
	c := &tokenClaims{}
	if err := json.Unmarshal(plaintext, c); err != nil {
		a.log.Debug("refresh token payload malformed", zap.Error(err))
		return nil
	}
	return a.checkClaims(c)
}

func refreshKey(secret string) []byte {
	sum := sha256.Sum256([]byte(secret))
	return sum[:]
}

func openRefreshToken(secret, raw string) ([]byte, error) {
	data, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return nil, errors.Wrap(err, "decode refresh token")
	}

	block, err := aes.NewCipher(refreshKey(secret))
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(data) < gcm.NonceSize() {
		return nil, errors.New("refresh token too short")
	}

	nonce, ciphertext := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, nil)
}

// SealRefreshToken encrypts a refresh claim set with the shared secret.
// The token issuer in the main application uses the same construction;
// the gateway only ever opens tokens.
func SealRefreshToken(secret, subject, issuer string, expiresAt int64) (string, error) {
	plaintext, err := json.Marshal(tokenClaims{Subject: subject, Issuer: issuer, ExpiresAt: expiresAt})
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(refreshKey(secret))
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	sealed := gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}
