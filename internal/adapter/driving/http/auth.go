package httphandler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var errMissingBearer = errors.New("missing bearer token")

// tokenAudience is the audience Supabase puts on end-user access tokens.
const tokenAudience = "authenticated"

// TokenVerifier checks the end-user access token sent by the chat client and
// returns its subject. Tokens are HS256 JWTs signed with the project secret and
// must carry an expiry and the "authenticated" audience.
type TokenVerifier struct {
	secret []byte
}

// NewTokenVerifier creates a TokenVerifier for tokens signed with secret.
func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret)}
}

// Subject validates the Authorization bearer token on r and returns its "sub" claim.
func (v *TokenVerifier) Subject(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	scheme, tokenStr, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || tokenStr == "" {
		return "", errMissingBearer
	}

	token, err := jwt.Parse(tokenStr, func(*jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithAudience(tokenAudience),
	)
	if err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}

	sub, err := token.Claims.GetSubject()
	if err != nil {
		return "", fmt.Errorf("read subject: %w", err)
	}
	if sub == "" {
		return "", errors.New("token has no subject")
	}
	return sub, nil
}
