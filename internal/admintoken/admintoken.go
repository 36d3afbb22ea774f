package admintoken

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Generate creates a signed HS256 bearer token accepted by the admin guard.
// Used by operators (and tests) to call the protected /token endpoints.
func Generate(secret, subject string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub": subject,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(ttl).Unix(),
	}
	jt := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return jt.SignedString([]byte(secret))
}
