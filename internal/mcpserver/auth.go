package mcpserver

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"pravnyk/internal/logging"
)

// authorized decides whether the request may run the given method.
// initialize and ping stay open so clients can probe the endpoint before
// presenting credentials. When neither an HMAC secret nor API keys are
// configured, the endpoint is open.
func (s *Server) authorized(r *http.Request, method string) bool {
	if method == "initialize" || method == "ping" {
		return true
	}
	if s.cfg.AuthSecret == "" && len(s.cfg.APIKeys) == 0 {
		return true
	}

	if key := r.Header.Get("X-API-Key"); key != "" {
		for _, allowed := range s.cfg.APIKeys {
			if subtle.ConstantTimeCompare([]byte(key), []byte(allowed)) == 1 {
				return true
			}
		}
		logging.MCPDebug("rejected unknown api key")
	}

	if s.cfg.AuthSecret != "" {
		if raw, ok := bearerToken(r.Header.Get("Authorization")); ok {
			if s.validToken(raw) {
				return true
			}
			logging.MCPDebug("rejected invalid bearer token")
		}
	}
	return false
}

// validToken verifies an HS256 bearer token against the shared secret.
func (s *Server) validToken(raw string) bool {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(s.cfg.AuthSecret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	return err == nil && token.Valid
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}
