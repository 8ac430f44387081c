package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const legacyIssuer = "prospectlens-api"

// LegacyClaims is the payload of HMAC-signed development tokens.
type LegacyClaims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// LegacyVerifier accepts HS256 tokens signed with a shared secret.
type LegacyVerifier struct {
	secret []byte
}

func NewLegacyVerifier(secret string) *LegacyVerifier {
	if secret == "" {
		return nil
	}
	return &LegacyVerifier{secret: []byte(secret)}
}

func (v *LegacyVerifier) Validate(tokenString string) (*Claims, error) {
	lc := &LegacyClaims{}
	_, err := jwt.ParseWithClaims(tokenString, lc, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if lc.UserID == "" {
		return nil, fmt.Errorf("%w: missing userId", ErrInvalidToken)
	}
	return &Claims{UserID: lc.UserID, Email: lc.Email, RegisteredClaims: lc.RegisteredClaims}, nil
}

// Issue signs a token for userID valid for ttl. Used by the CLI and tests.
func (v *LegacyVerifier) Issue(userID, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := LegacyClaims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    legacyIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
