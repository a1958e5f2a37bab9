package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/model"
)

var ErrInvalidToken = errors.New("invalid token")

// Verifier turns a bearer token into a verified principal.
type Verifier interface {
	Verify(ctx context.Context, token string) (*model.Principal, error)
}

// Claims carried by identity tokens. The admin flag is read once here and
// travels with the principal.
type Claims struct {
	Email string `json:"email"`
	Admin bool   `json:"admin,omitempty"`
	jwt.RegisteredClaims
}

type JWTVerifier struct {
	secret []byte
	issuer string
	nowFn  func() time.Time
}

func NewJWTVerifier(secret, issuer string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret), issuer: issuer, nowFn: time.Now}
}

func (v *JWTVerifier) Verify(_ context.Context, tokenString string) (*model.Principal, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.nowFn),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	return &model.Principal{
		UserID: claims.Subject,
		Email:  model.NormalizeEmail(claims.Email),
		Admin:  claims.Admin,
	}, nil
}

// Issue signs a token for p. Used by tooling and tests; production tokens
// come from the identity provider.
func (v *JWTVerifier) Issue(p model.Principal, ttl time.Duration) (string, error) {
	now := v.nowFn()
	claims := Claims{
		Email: p.Email,
		Admin: p.Admin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
