package rpc

import (
	"errors"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const (
	// AdminScope must be present in the token's scope claim for admin methods.
	AdminScope = "admin"

	jwtClockSkew = 2 * time.Minute
)

type adminAuth struct {
	secret []byte
	issuer string
}

func newAdminAuth(secret, issuer string) *adminAuth {
	return &adminAuth{secret: []byte(strings.TrimSpace(secret)), issuer: strings.TrimSpace(issuer)}
}

func (a *adminAuth) authorize(r *http.Request) *RPCError {
	if len(a.secret) == 0 {
		return &RPCError{Code: codeUnauthorized, Message: "admin authentication not configured"}
	}
	token := extractBearer(r.Header.Get("Authorization"))
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	claims, err := a.parse(token)
	if err != nil {
		return &RPCError{Code: codeUnauthorized, Message: "invalid token", Data: err.Error()}
	}
	if !hasScope(claims, AdminScope) {
		return &RPCError{Code: codeUnauthorized, Message: "insufficient scope"}
	}
	return nil
}

func (a *adminAuth) parse(tokenString string) (jwt.MapClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithLeeway(jwtClockSkew),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("token invalid")
	}
	return claims, nil
}

func hasScope(claims jwt.MapClaims, want string) bool {
	switch v := claims["scope"].(type) {
	case string:
		for _, scope := range strings.Fields(v) {
			if scope == want {
				return true
			}
		}
	case []interface{}:
		for _, entry := range v {
			if s, ok := entry.(string); ok && s == want {
				return true
			}
		}
	}
	return false
}

func extractBearer(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// IssueAdminToken mints an HS256 admin token, used by the CLI and tests.
func IssueAdminToken(secret, issuer, subject string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("rpc: jwt secret required")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   subject,
		"scope": AdminScope,
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	}
	if issuer = strings.TrimSpace(issuer); issuer != "" {
		claims["iss"] = issuer
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(strings.TrimSpace(secret)))
}
