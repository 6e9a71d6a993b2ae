package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sessionguard/platform/internal/guard"
)

const gotrueCircuitKey = "gotrue"

// GoTrueConfig configures a GoTrue (Supabase Auth) identity provider.
type GoTrueConfig struct {
	BaseURL     string // e.g. https://<project>.supabase.co/auth/v1
	AnonKey     string
	JWTSecret   string // verifies the returned access token when set
	EmailDomain string // usernames map to <username>@<EmailDomain>
	Timeout     time.Duration
}

// GoTrueIdentity authenticates with the GoTrue password grant. Upstream
// failures feed a circuit breaker; credential rejections do not.
type GoTrueIdentity struct {
	cfg     GoTrueConfig
	client  *http.Client
	breaker *guard.CircuitBreaker
}

// NewGoTrueIdentity creates a GoTrue provider guarded by breaker.
func NewGoTrueIdentity(cfg GoTrueConfig, breaker *guard.CircuitBreaker) *GoTrueIdentity {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.EmailDomain == "" {
		cfg.EmailDomain = "internal.local"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &GoTrueIdentity{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: breaker,
	}
}

// Email returns the provider-side identity for a username.
func (g *GoTrueIdentity) Email(username string) string {
	return strings.ToLower(strings.TrimSpace(username)) + "@" + g.cfg.EmailDomain
}

func (g *GoTrueIdentity) Authenticate(ctx context.Context, username, password string) (uuid.UUID, error) {
	var userID uuid.UUID
	err := g.breaker.Do(ctx, gotrueCircuitKey, isUpstreamFailure, func() error {
		var err error
		userID, err = g.passwordGrant(ctx, g.Email(username), password)
		return err
	})
	if errors.Is(err, guard.ErrCircuitOpen) {
		return uuid.Nil, unavailable(err)
	}
	if err != nil {
		return uuid.Nil, err
	}
	return userID, nil
}

func isUpstreamFailure(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	User        struct {
		ID string `json:"id"`
	} `json:"user"`
}

func (g *GoTrueIdentity) passwordGrant(ctx context.Context, email, password string) (uuid.UUID, error) {
	body, _ := json.Marshal(map[string]string{"email": email, "password": password})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.cfg.BaseURL+"/token?grant_type=password", bytes.NewReader(body))
	if err != nil {
		return uuid.Nil, unavailable(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if g.cfg.AnonKey != "" {
		req.Header.Set("apikey", g.cfg.AnonKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return uuid.Nil, unavailable(fmt.Errorf("api call: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusBadRequest,
		resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusUnprocessableEntity:
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return uuid.Nil, ErrInvalidCredentials
	case resp.StatusCode != http.StatusOK:
		return uuid.Nil, unavailable(fmt.Errorf("api returned %d", resp.StatusCode))
	}

	var tr tokenResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&tr); err != nil {
		return uuid.Nil, unavailable(fmt.Errorf("decode response: %w", err))
	}

	subject := tr.User.ID
	if g.cfg.JWTSecret != "" {
		subject, err = g.verifySubject(tr.AccessToken)
		if err != nil {
			return uuid.Nil, unavailable(err)
		}
	}

	id, err := uuid.Parse(subject)
	if err != nil {
		return uuid.Nil, unavailable(fmt.Errorf("invalid user id %q", subject))
	}
	return id, nil
}

func (g *GoTrueIdentity) verifySubject(accessToken string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(accessToken, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(g.cfg.JWTSecret), nil
	})
	if err != nil {
		return "", fmt.Errorf("verify access token: %w", err)
	}
	if !token.Valid || claims.Subject == "" {
		return "", fmt.Errorf("access token has no subject")
	}
	return claims.Subject, nil
}
