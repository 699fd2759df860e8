package pipeline

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL bounds how long a worker credential stays valid. Workers
// are handed a scoped token rather than the signing secret itself.
const DefaultTokenTTL = 5 * time.Minute

// TokenIssuer mints and verifies the short-lived credentials passed to
// worker-path runs over the message protocol.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl}
}

// Issue returns an HS256 token scoped to a single document ingestion.
func (t *TokenIssuer) Issue(documentID string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"scope": "ingest",
		"doc":   documentID,
		"iat":   now.Unix(),
		"exp":   now.Add(t.ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign worker token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, expiry and scope, and returns the document id the
// token was issued for.
func (t *TokenIssuer) Verify(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", tok.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("parse worker token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("invalid worker token")
	}
	if scope, _ := claims["scope"].(string); scope != "ingest" {
		return "", fmt.Errorf("worker token has wrong scope")
	}
	doc, _ := claims["doc"].(string)
	if doc == "" {
		return "", fmt.Errorf("worker token missing document id")
	}
	return doc, nil
}
