package auth

import (
	"errors"
	"net/http"
	"strings"
)

// AccessTokenQueryParameter carries the token for clients that cannot set
// headers, such as browser EventSource streams.
const AccessTokenQueryParameter = "access_token"

const bearerPrefix = "Bearer "

var (
	ErrMissingToken       = errors.New("auth: token required")
	ErrMalformedAuthValue = errors.New("auth: authorization header must use the Bearer scheme")
)

// TokenFromRequest returns the bearer token of r. The Authorization header
// wins over the access_token query parameter.
func TokenFromRequest(r *http.Request) (string, error) {
	if r == nil {
		return "", ErrMissingToken
	}
	if header := r.Header.Get("Authorization"); header != "" {
		if !strings.HasPrefix(header, bearerPrefix) {
			return "", ErrMalformedAuthValue
		}
		token := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
		if token == "" {
			return "", ErrMissingToken
		}
		return token, nil
	}
	if token := strings.TrimSpace(r.URL.Query().Get(AccessTokenQueryParameter)); token != "" {
		return token, nil
	}
	return "", ErrMissingToken
}
