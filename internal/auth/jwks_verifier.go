package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/cinder/storyboard/internal/config"
)

const (
	discoveryTimeout = 30 * time.Second
	clockSkew        = 30 * time.Second
)

// ErrInvalidToken is wrapped by every JWKSVerifier rejection
var ErrInvalidToken = errors.New("invalid token")

// TokenVerifier defines the interface for JWT token verification
type TokenVerifier interface {
	Validate(tokenString string) (*Claims, error)
	Close() error
}

// Claims represents the JWT claims from Zitadel
type Claims struct {
	UserID            string   `json:"sub"`
	Email             string   `json:"email,omitempty"`
	EmailVerified     bool     `json:"email_verified,omitempty"`
	Name              string   `json:"name,omitempty"`
	PreferredUsername string   `json:"preferred_username,omitempty"`
	Roles             []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// JWKSVerifier checks storyboard API tokens against the identity provider's
// published signing keys. Keys are refreshed in the background until Close.
type JWKSVerifier struct {
	jwks   keyfunc.Keyfunc
	parser *jwt.Parser
	stop   context.CancelFunc
}

// NewJWKSVerifier discovers the key set of cfg's issuer. The issuer defaults
// to https://<Domain> when only the domain is configured.
func NewJWKSVerifier(cfg *config.ZitadelConfig) (*JWKSVerifier, error) {
	issuer := issuerFor(cfg)
	if issuer == "" {
		return nil, fmt.Errorf("zitadel issuer is required")
	}

	discoverCtx, cancel := context.WithTimeout(context.Background(), discoveryTimeout)
	defer cancel()

	jwksURL, err := discoverJWKSURL(discoverCtx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover JWKS URL: %w", err)
	}

	// The refresh goroutine lives as long as the verifier
	refreshCtx, stop := context.WithCancel(context.Background())
	jwks, err := keyfunc.NewDefaultCtx(refreshCtx, []string{jwksURL})
	if err != nil {
		stop()
		return nil, fmt.Errorf("failed to create JWKS keyfunc: %w", err)
	}

	opts := []jwt.ParserOption{
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
		jwt.WithValidMethods([]string{"RS256", "RS384", "RS512", "ES256", "ES384", "EdDSA"}),
	}
	if cfg.ClientID != "" {
		opts = append(opts, jwt.WithAudience(cfg.ClientID))
	}

	return &JWKSVerifier{
		jwks:   jwks,
		parser: jwt.NewParser(opts...),
		stop:   stop,
	}, nil
}

func issuerFor(cfg *config.ZitadelConfig) string {
	if issuer := strings.TrimRight(strings.TrimSpace(cfg.Issuer), "/"); issuer != "" {
		return issuer
	}
	if domain := strings.TrimSpace(cfg.Domain); domain != "" {
		return "https://" + strings.TrimRight(domain, "/")
	}
	return ""
}

// discoverJWKSURL reads jwks_uri from the issuer's OIDC discovery document
func discoverJWKSURL(ctx context.Context, issuer string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, issuer+"/.well-known/openid-configuration", nil)
	if err != nil {
		return "", err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("discovery endpoint returned status %d", resp.StatusCode)
	}

	var doc struct {
		JWKSURI string `json:"jwks_uri"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return "", fmt.Errorf("malformed discovery document: %w", err)
	}
	if doc.JWKSURI == "" {
		return "", errors.New("discovery document has no jwks_uri")
	}
	return doc.JWKSURI, nil
}

// Validate returns the claims of a signed, unexpired token for this client.
// Tokens without a subject cannot own a storyboard session and are refused.
func (v *JWKSVerifier) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	if _, err := v.parser.ParseWithClaims(tokenString, claims, v.jwks.Keyfunc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: no subject", ErrInvalidToken)
	}
	return claims, nil
}

// Close stops the background key refresh
func (v *JWKSVerifier) Close() error {
	v.stop()
	return nil
}
