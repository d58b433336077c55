package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/url"
)

const activationTokenBytes = 32

// NewActivationToken returns a URL-safe token carrying 256 bits of entropy.
func NewActivationToken() (string, error) {
	buf := make([]byte, activationTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// ActivationLink appends the token as the "token" query parameter of baseURL.
func ActivationLink(baseURL, token string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse activation url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
