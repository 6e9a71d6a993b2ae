//go:build integration

package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sessionguard/platform/internal/auth"
)

// AdminToken mints an operator token with the given role.
func (env *TestEnv) AdminToken(role string) string {
	env.t.Helper()
	tok, err := env.JWTMgr.GenerateToken(uuid.New(), "it-operator", role)
	if err != nil {
		env.t.Fatalf("AdminToken: %v", err)
	}
	return tok
}

// CreateUser provisions a local user through the admin API.
func (env *TestEnv) CreateUser(username, password string) uuid.UUID {
	env.t.Helper()
	resp := env.POST("/admin/users", map[string]string{
		"username": username,
		"password": password,
	}, env.AdminToken(auth.RoleAdmin))
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		env.t.Fatalf("CreateUser: expected 201, got %d", resp.StatusCode)
	}
	var result struct {
		UserID uuid.UUID `json:"user_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		env.t.Fatalf("CreateUser: decode: %v", err)
	}
	return result.UserID
}

// LoginBody builds a login request for the given device.
func LoginBody(username, password string, fp map[string]interface{}, fpHash string) map[string]interface{} {
	return map[string]interface{}{
		"username":         username,
		"password":         password,
		"fingerprint_raw":  fp,
		"fingerprint_hash": fpHash,
	}
}

// Login logs in and returns the new session id.
func (env *TestEnv) Login(body map[string]interface{}) uuid.UUID {
	env.t.Helper()
	resp := env.POST("/auth/login", body, "")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		env.t.Fatalf("Login: expected 200, got %d", resp.StatusCode)
	}
	var result struct {
		Session struct {
			ID uuid.UUID `json:"id"`
		} `json:"session"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		env.t.Fatalf("Login: decode: %v", err)
	}
	return result.Session.ID
}

// POST performs a POST request with optional auth token.
func (env *TestEnv) POST(path string, body interface{}, token string) *http.Response {
	env.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			env.t.Fatalf("POST %s: encode: %v", path, err)
		}
	}
	req, err := http.NewRequest(http.MethodPost, env.Server.URL+path, &buf)
	if err != nil {
		env.t.Fatalf("POST %s: new request: %v", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		env.t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

// AuthGET performs an authenticated GET request.
func (env *TestEnv) AuthGET(path, token string) *http.Response {
	env.t.Helper()
	req, err := http.NewRequest(http.MethodGet, env.Server.URL+path, nil)
	if err != nil {
		env.t.Fatalf("AuthGET %s: new request: %v", path, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		env.t.Fatalf("AuthGET %s: %v", path, err)
	}
	return resp
}

// CountActiveSessions counts a user's active sessions straight from the table.
func (env *TestEnv) CountActiveSessions(userID uuid.UUID) int {
	env.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var count int
	err := env.Pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM user_sessions WHERE user_id = $1 AND is_active", userID).Scan(&count)
	if err != nil {
		env.t.Fatalf("CountActiveSessions: %v", err)
	}
	return count
}

// Profile reads a user's stored risk score and status.
func (env *TestEnv) Profile(userID uuid.UUID) (int, string) {
	env.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var score int
	var status string
	err := env.Pool.QueryRow(ctx,
		"SELECT risk_score, account_status FROM user_profiles WHERE user_id = $1", userID).Scan(&score, &status)
	if err != nil {
		env.t.Fatalf("Profile: %v", err)
	}
	return score, status
}
