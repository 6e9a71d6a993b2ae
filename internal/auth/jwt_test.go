package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJWTManager() *JWTManager {
	return NewJWTManager("test-secret-key", 8*time.Hour)
}

func TestGenerateAndValidateAdminToken(t *testing.T) {
	mgr := newTestJWTManager()
	adminID := uuid.New()

	token, err := mgr.GenerateToken(adminID, "ops", RoleSuperAdmin)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := mgr.ValidateTokenForRealm(token, RealmAdmin)
	require.NoError(t, err)
	assert.Equal(t, adminID.String(), claims.Subject)
	assert.Equal(t, RealmAdmin, claims.Realm)
	assert.Equal(t, RoleSuperAdmin, claims.Role)
	assert.Equal(t, "ops", claims.Username)
}

func TestUnknownRoleRejected(t *testing.T) {
	_, err := newTestJWTManager().GenerateToken(uuid.New(), "ops", "root")
	assert.Error(t, err)
}

func TestRealmMismatchRejected(t *testing.T) {
	secret := []byte("test-secret-key")
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Realm: "player",
		Role:  RoleAdmin,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)

	_, err = newTestJWTManager().ValidateTokenForRealm(token, RealmAdmin)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected realm admin")
}

func TestForeignIssuerRejected(t *testing.T) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Realm: RealmAdmin,
		Role:  RoleAdmin,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret-key"))
	require.NoError(t, err)

	_, err = newTestJWTManager().ValidateToken(token)
	assert.Error(t, err)
}

func TestInvalidSecretRejected(t *testing.T) {
	mgr1 := NewJWTManager("secret-1", time.Hour)
	mgr2 := NewJWTManager("secret-2", time.Hour)

	token, err := mgr1.GenerateToken(uuid.New(), "", RoleViewer)
	require.NoError(t, err)

	_, err = mgr2.ValidateToken(token)
	assert.Error(t, err)
}

func TestExpiredTokenRejected(t *testing.T) {
	mgr := NewJWTManager("secret", time.Minute)
	issued := time.Now().Add(-time.Hour)
	mgr.now = func() time.Time { return issued }

	token, err := mgr.GenerateToken(uuid.New(), "", RoleViewer)
	require.NoError(t, err)

	mgr.now = time.Now
	_, err = mgr.ValidateToken(token)
	assert.Error(t, err)
}

func TestAuthenticateAdmin(t *testing.T) {
	mgr := newTestJWTManager()
	subject := uuid.New()
	token, err := mgr.GenerateToken(subject, "ops", RoleViewer)
	require.NoError(t, err)

	var seen string
	h := AuthenticateAdmin(mgr)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = SubjectFromContext(r.Context())
		assert.Equal(t, RoleViewer, ClaimsFromContext(r.Context()).Role)
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"valid bearer", "Bearer " + token, http.StatusOK},
		{"lowercase scheme", "bearer " + token, http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer not.a.jwt", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/admin/users", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
	assert.Equal(t, subject.String(), seen)
}

func TestRequireRole(t *testing.T) {
	mgr := newTestJWTManager()
	viewer, _ := mgr.GenerateToken(uuid.New(), "v", RoleViewer)
	admin, _ := mgr.GenerateToken(uuid.New(), "a", RoleAdmin)

	h := AuthenticateAdmin(mgr)(RequireRole(WriteRoles()...)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusCreated) }),
	))

	for token, want := range map[string]int{viewer: http.StatusForbidden, admin: http.StatusCreated} {
		r := httptest.NewRequest(http.MethodPost, "/admin/users", nil)
		r.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		assert.Equal(t, want, w.Code)
	}

	w := httptest.NewRecorder()
	RequireRole(RoleAdmin)(http.NotFoundHandler()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
