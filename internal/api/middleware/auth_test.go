package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirchapagain/FindMyRoom/internal/api/middleware"
	"github.com/samirchapagain/FindMyRoom/internal/models"
	"github.com/samirchapagain/FindMyRoom/internal/store/storetest"
)

const jwtSecret = "test-jwt-secret"

func mintToken(t *testing.T, secret string, sub string, ttl time.Duration) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"exp": time.Now().Add(ttl).Unix(),
		"iat": time.Now().Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func authFixture(t *testing.T) (http.Handler, uuid.UUID) {
	t.Helper()
	db := storetest.New()
	userID := uuid.New()
	db.AddUser(models.User{ID: userID, Name: "Asha", IsClient: true})

	auth := middleware.NewAuthMiddleware(db, jwtSecret)
	handler := auth.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := middleware.GetIdentityFromContext(r.Context())
		if !assert.NotNil(t, identity) {
			return
		}
		assert.Equal(t, userID, identity.ID)
		assert.True(t, identity.IsClient)
		w.WriteHeader(http.StatusNoContent)
	}))
	return handler, userID
}

func TestRequireAuthAcceptsBearerToken(t *testing.T) {
	handler, userID := authFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/conversations", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, jwtSecret, userID.String(), time.Hour))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRequireAuthAcceptsQueryToken(t *testing.T) {
	handler, userID := authFixture(t)

	// WebSocket upgrades cannot set headers from the browser.
	req := httptest.NewRequest(http.MethodGet, "/ws/notifications?token="+mintToken(t, jwtSecret, userID.String(), time.Hour), nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRequireAuthRejections(t *testing.T) {
	handler, userID := authFixture(t)

	tests := []struct {
		name  string
		token string
	}{
		{"missing token", ""},
		{"wrong secret", mintToken(t, "other-secret", userID.String(), time.Hour)},
		{"expired", mintToken(t, jwtSecret, userID.String(), -time.Hour)},
		{"garbage subject", mintToken(t, jwtSecret, "not-a-uuid", time.Hour)},
		{"unknown user", mintToken(t, jwtSecret, uuid.NewString(), time.Hour)},
		{"not a jwt", "garbage"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/conversations", nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestRequireAuthRejectsUnsignedAlgorithm(t *testing.T) {
	handler, userID := authFixture(t)

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": userID.String(),
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/conversations", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
