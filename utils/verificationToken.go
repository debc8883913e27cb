package utils

import (
	"crypto/rand"
	"encoding/base64"
)

// TokenSource produces opaque verification tokens. Injected so tests can
// supply deterministic tokens.
type TokenSource interface {
	Token() (string, error)
}

type randomTokenSource struct{}

func (randomTokenSource) Token() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(buf), nil
}

var tokenSource TokenSource = randomTokenSource{}

func SetTokenSource(s TokenSource) {
	tokenSource = s
}

func GenerateVerificationToken() (string, error) {
	return tokenSource.Token()
}
