package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"quiz-session-service/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the custom fields the identity provider puts into access tokens.
type Claims struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Verifier validates HMAC-signed access tokens issued by the identity provider.
type Verifier struct {
	secret []byte
	issuer string
}

func NewVerifier(secret, issuer string) (*Verifier, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	return &Verifier{secret: []byte(secret), issuer: issuer}, nil
}

// Parse validates the token and returns the identity it carries.
func (v *Verifier) Parse(raw string) (domain.Identity, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", domain.ErrUnauthenticated, err)
	}

	userID := claims.UserID
	if userID == 0 && claims.Subject != "" {
		userID, _ = strconv.ParseInt(claims.Subject, 10, 64)
	}
	if userID <= 0 {
		return domain.Identity{}, fmt.Errorf("%w: token has no user", domain.ErrUnauthenticated)
	}
	role, err := domain.ParseRole(claims.Role)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", domain.ErrUnauthenticated, err)
	}
	return domain.Identity{UserID: userID, Role: role}, nil
}

// Sign mints a token for id. Used by trusted tooling and tests; end-user
// tokens come from the identity provider.
func (v *Verifier) Sign(id domain.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: id.UserID,
		Role:   string(id.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(id.UserID, 10),
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
