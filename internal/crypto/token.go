package crypto

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenExpired reports whether the access token carries an exp claim in the
// past.
//
// The claim is parsed without signature verification: the daemon is the
// authority on token validity, this check only lets the client fail fast
// before dialing with a token it knows is stale. Malformed tokens and tokens
// without an exp claim are not treated as expired.
func TokenExpired(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(now)
}
