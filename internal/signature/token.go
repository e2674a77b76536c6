// Package signature содержит подписанные ссылки на страницу подписи и обработку нарисованных подписей.
package signature

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
)

// ErrInvalidToken возвращается для повреждённого или поддельного токена ссылки.
var ErrInvalidToken = errors.New("invalid signature link token")

// Signer выпускает и проверяет токены ссылок вида <id>.<hmac>, привязанные к идентификатору отчёта.
type Signer struct {
	secretKey []byte
}

// NewSigner создаёт Signer с указанным секретом. Пустой секрет заменяется случайным,
// и тогда ссылки действуют только до перезапуска процесса.
func NewSigner(secret string) *Signer {
	key := []byte(secret)
	if len(key) == 0 {
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err == nil {
			key = randomKey
		} else {
			key = []byte("default-secret-key")
		}
	}

	return &Signer{secretKey: key}
}

// Token возвращает токен ссылки для отчёта.
func (s *Signer) Token(reportID string) string {
	encoded := base64.RawURLEncoding.EncodeToString([]byte(reportID))
	return encoded + "." + s.sign(encoded)
}

// ReportID проверяет токен и возвращает идентификатор отчёта.
func (s *Signer) ReportID(token string) (string, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 2 || parts[0] == "" {
		return "", ErrInvalidToken
	}

	if !hmac.Equal([]byte(parts[1]), []byte(s.sign(parts[0]))) {
		return "", ErrInvalidToken
	}

	id, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return "", ErrInvalidToken
	}

	return string(id), nil
}

func (s *Signer) sign(value string) string {
	mac := hmac.New(sha256.New, s.secretKey)
	mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil))
}
