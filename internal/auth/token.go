package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const tokenTTL = 24 * time.Hour

// Identity is what a verified token asserts about the caller.
type Identity struct {
	UserID int64
	Role   int64
}

// JWT signs and verifies HS256 session tokens.
type JWT struct {
	secret []byte
}

func NewJWT(secret string) *JWT {
	return &JWT{secret: []byte(secret)}
}

// Sign issues a token for the given user and role.
func (j *JWT) Sign(userID, role int64) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  userID,
		"role": role,
		"iat":  now.Unix(),
		"exp":  now.Add(tokenTTL).Unix(),
		"jti":  uuid.NewString(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(j.secret)
}

// Verify checks the token signature and expiry and returns the identity it
// carries.
func (j *JWT) Verify(tokenStr string) (Identity, error) {
	t, err := jwt.Parse(tokenStr, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return j.secret, nil
	})
	if err != nil || !t.Valid {
		return Identity{}, errors.New("invalid token")
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, errors.New("invalid claims")
	}

	// jwt MapClaims numbers are float64
	sub, ok := claims["sub"].(float64)
	if !ok {
		return Identity{}, errors.New("missing sub")
	}
	role, ok := claims["role"].(float64)
	if !ok {
		return Identity{}, errors.New("missing role")
	}
	return Identity{UserID: int64(sub), Role: int64(role)}, nil
}
