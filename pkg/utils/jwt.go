package utils

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/moneymapper/authcore/internal/models"
)

func init() {
	// Revocation cutoffs compare against iat, so whole seconds are too coarse.
	jwt.TimePrecision = time.Millisecond
}

type Claims struct {
	Username string   `json:"username"`
	Roles    []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// JWTIssuer signs and verifies HS256 bearer tokens with one shared secret.
type JWTIssuer struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

func NewJWTIssuer(secret string, ttl time.Duration, issuer string) *JWTIssuer {
	if secret == "" {
		secret = "change-me-in-production"
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &JWTIssuer{secret: []byte(secret), ttl: ttl, issuer: issuer, now: time.Now}
}

// WithClock replaces the issuer's time source.
func (i *JWTIssuer) WithClock(now func() time.Time) *JWTIssuer {
	i.now = now
	return i
}

func (i *JWTIssuer) TTL() time.Duration {
	return i.ttl
}

func (i *JWTIssuer) Issue(user *models.User) (string, error) {
	now := i.now()
	claims := Claims{
		Username: user.Username,
		Roles:    user.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    i.issuer,
			Subject:   user.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

func (i *JWTIssuer) keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method")
	}
	return i.secret, nil
}

// Parse verifies signature and time claims.
func (i *JWTIssuer) Parse(tokenString string) (*Claims, error) {
	parser := jwt.NewParser(jwt.WithTimeFunc(i.now))
	token, err := parser.ParseWithClaims(tokenString, &Claims{}, i.keyFunc)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// inspect verifies the signature but tolerates an expired token, so logout
// and revocation can still read the claims.
func (i *JWTIssuer) inspect(tokenString string) (*Claims, error) {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	token, err := parser.ParseWithClaims(tokenString, &Claims{}, i.keyFunc)
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

func (i *JWTIssuer) ExtractUsername(tokenString string) (string, error) {
	claims, err := i.inspect(tokenString)
	if err != nil {
		return "", err
	}
	return claims.Username, nil
}

func (i *JWTIssuer) ExtractExpiry(tokenString string) (time.Time, error) {
	claims, err := i.inspect(tokenString)
	if err != nil {
		return time.Time{}, err
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, fmt.Errorf("token has no expiry")
	}
	return claims.ExpiresAt.Time, nil
}

func (i *JWTIssuer) ExtractIssuedAt(tokenString string) (time.Time, error) {
	claims, err := i.inspect(tokenString)
	if err != nil {
		return time.Time{}, err
	}
	if claims.IssuedAt == nil {
		return time.Time{}, fmt.Errorf("token has no issued-at")
	}
	return claims.IssuedAt.Time, nil
}

// Validate reports whether the token is well-signed, unexpired and belongs
// to user.
func (i *JWTIssuer) Validate(tokenString string, user *models.User) bool {
	claims, err := i.Parse(tokenString)
	if err != nil {
		return false
	}
	return user != nil && claims.Username == user.Username
}
