package rpc

import (
	"errors"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"klubstake/crypto"
)

// JWTConfig controls bearer-token caller identity. The token subject is the
// caller's bech32 address.
type JWTConfig struct {
	Enable     bool
	HMACSecret string
	Issuer     string
	Audience   string
	ClockSkew  time.Duration
}

type authenticator struct {
	cfg    JWTConfig
	secret []byte
}

func newAuthenticator(cfg JWTConfig) (*authenticator, error) {
	secret := []byte(strings.TrimSpace(cfg.HMACSecret))
	if cfg.Enable && len(secret) == 0 {
		return nil, errors.New("rpc: jwt enabled without an hmac secret")
	}
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = 2 * time.Minute
	}
	return &authenticator{cfg: cfg, secret: secret}, nil
}

// callerFrom returns the identity carried by the request's bearer token. The
// boolean is false when no token was presented.
func (a *authenticator) callerFrom(r *http.Request) (crypto.Address, bool, error) {
	if a == nil || !a.cfg.Enable {
		return crypto.Address{}, false, nil
	}
	tokenString := extractBearer(r.Header.Get("Authorization"))
	if tokenString == "" {
		return crypto.Address{}, false, nil
	}
	claims, err := a.parseToken(tokenString)
	if err != nil {
		return crypto.Address{}, true, err
	}
	subject, err := claims.GetSubject()
	if err != nil || strings.TrimSpace(subject) == "" {
		return crypto.Address{}, true, errors.New("token subject required")
	}
	addr, err := crypto.ParseAddress(crypto.KlubPrefix, subject)
	if err != nil {
		return crypto.Address{}, true, err
	}
	return addr, true, nil
}

func (a *authenticator) parseToken(tokenString string) (jwt.MapClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithLeeway(a.cfg.ClockSkew),
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
	}
	if a.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.cfg.Issuer))
	}
	if a.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(a.cfg.Audience))
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
	if !token.Valid {
		return nil, errors.New("token invalid")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("claims not map")
	}
	return claims, nil
}

func extractBearer(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// IssueToken signs an HMAC bearer token whose subject is caller.
func IssueToken(cfg JWTConfig, caller crypto.Address, ttl time.Duration) (string, error) {
	secret := strings.TrimSpace(cfg.HMACSecret)
	if secret == "" {
		return "", errors.New("rpc: hmac secret required")
	}
	if caller.IsZero() {
		return "", errors.New("rpc: caller required")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   caller.String(),
		Issuer:    cfg.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	if cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{cfg.Audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
