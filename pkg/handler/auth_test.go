package handler

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/crewroom/crewroom/pkg/models"
)

func TestTokenIssuer_RoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", time.Hour)
	user := &models.User{ID: 42, Username: "alice"}

	token, expiresAt, err := issuer.Issue(user)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if !expiresAt.After(time.Now()) {
		t.Errorf("expiry %v is not in the future", expiresAt)
	}

	userID, err := issuer.Parse(token)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if userID != 42 {
		t.Errorf("userID = %d, want 42", userID)
	}

	if _, err := issuer.Parse(token + "x"); err == nil {
		t.Errorf("expected error for tampered token")
	}
	other := NewTokenIssuer("different-secret", time.Hour)
	if _, err := other.Parse(token); err == nil {
		t.Errorf("expected error for wrong secret")
	}
}

func TestTokenIssuer_Expired(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", -time.Minute)
	token, _, err := issuer.Issue(&models.User{ID: 1, Username: "alice"})
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if _, err := issuer.Parse(token); err == nil {
		t.Errorf("expected error for expired token")
	}
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	issuer := NewTokenIssuer("test-secret", time.Hour)

	router := gin.New()
	router.GET("/protected", AuthMiddleware(issuer), func(c *gin.Context) {
		c.String(http.StatusOK, "%d", CurrentUserID(c))
	})

	token, _, err := issuer.Issue(&models.User{ID: 7, Username: "alice"})
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	tests := []struct {
		name       string
		target     string
		authHeader string
		wantCode   int
		wantBody   string
	}{
		{
			name:     "missing credentials",
			target:   "/protected",
			wantCode: http.StatusUnauthorized,
		},
		{
			name:       "valid bearer token",
			target:     "/protected",
			authHeader: "Bearer " + token,
			wantCode:   http.StatusOK,
			wantBody:   "7",
		},
		{
			name:       "malformed header",
			target:     "/protected",
			authHeader: token,
			wantCode:   http.StatusUnauthorized,
		},
		{
			name:       "garbage token",
			target:     "/protected",
			authHeader: "Bearer not-a-jwt",
			wantCode:   http.StatusUnauthorized,
		},
		{
			name:     "token query parameter",
			target:   fmt.Sprintf("/protected?token=%s", token),
			wantCode: http.StatusOK,
			wantBody: "7",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantCode)
			}
			if tt.wantBody != "" && w.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", w.Body.String(), tt.wantBody)
			}
		})
	}
}
