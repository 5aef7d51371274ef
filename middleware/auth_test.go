package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/AnTengye/contractrisk/config"
	"github.com/AnTengye/contractrisk/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testAuth = &config.AuthConfig{JWTSecret: "test-secret-key", TokenExpireHours: 24}

func signClaims(t *testing.T, claims Claims, secret string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return signed
}

func TestGenerateAndParseToken(t *testing.T) {
	token, expiresAt, err := GenerateToken("mario", "studio-rossi", testAuth)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	expected := time.Now().Add(24 * time.Hour)
	if expiresAt.Before(expected.Add(-time.Minute)) || expiresAt.After(expected.Add(time.Minute)) {
		t.Errorf("Expiry %v not close to %v", expiresAt, expected)
	}

	claims, err := ParseToken(token, testAuth)
	if err != nil {
		t.Fatalf("Failed to parse token: %v", err)
	}
	if claims.Username != "mario" || claims.Tenant != "studio-rossi" {
		t.Errorf("Unexpected claims %+v", claims)
	}
	if claims.Issuer != TokenIssuer || claims.Subject != "mario" {
		t.Errorf("Expected issuer %q and subject mario, got %q %q", TokenIssuer, claims.Issuer, claims.Subject)
	}
}

func TestParseTokenRejects(t *testing.T) {
	future := jwt.NewNumericDate(time.Now().Add(time.Hour))
	valid := jwt.RegisteredClaims{Issuer: TokenIssuer, ExpiresAt: future}

	noTenant, _, _ := GenerateToken("mario", "", testAuth)
	otherSecret, _, _ := GenerateToken("mario", "t1", &config.AuthConfig{JWTSecret: "other", TokenExpireHours: 1})
	unsigned, _ := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Username: "mario", Tenant: "t1", RegisteredClaims: valid}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name  string
		token string
	}{
		{"no tenant", noTenant},
		{"other secret", otherSecret},
		{"alg none", unsigned},
		{"expired", signClaims(t, Claims{Username: "mario", Tenant: "t1", RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    TokenIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		}}, testAuth.JWTSecret)},
		{"no expiry", signClaims(t, Claims{Username: "mario", Tenant: "t1", RegisteredClaims: jwt.RegisteredClaims{
			Issuer: TokenIssuer,
		}}, testAuth.JWTSecret)},
		{"foreign issuer", signClaims(t, Claims{Username: "mario", Tenant: "t1", RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			ExpiresAt: future,
		}}, testAuth.JWTSecret)},
		{"garbage", "invalid.token.here"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseToken(tt.token, testAuth); err == nil {
				t.Error("Expected token to be rejected")
			}
		})
	}

	if _, err := ParseToken(noTenant, testAuth); !errors.Is(err, ErrNoTenant) {
		t.Errorf("Expected ErrNoTenant, got %v", err)
	}
}

func TestAuthMiddleware(t *testing.T) {
	token, _, err := GenerateToken("mario", "studio-rossi", testAuth)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	tests := []struct {
		name    string
		header  string
		status  int
		message string
	}{
		{"valid token", "Bearer " + token, http.StatusOK, ""},
		{"lowercase scheme", "bearer " + token, http.StatusOK, ""},
		{"missing header", "", http.StatusUnauthorized, "Autenticazione richiesta"},
		{"no scheme", token, http.StatusUnauthorized, "Formato dell'header Authorization non valido"},
		{"basic scheme", "Basic bWFyaW86c2VncmV0YQ==", http.StatusUnauthorized, "Formato dell'header Authorization non valido"},
		{"empty token", "Bearer ", http.StatusUnauthorized, "Formato dell'header Authorization non valido"},
		{"invalid token", "Bearer invalid.token.here", http.StatusUnauthorized, "Token non valido o scaduto"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.Use(AuthMiddleware(testAuth))
			router.GET("/api/contracts", func(c *gin.Context) {
				c.String(http.StatusOK, GetTenant(c)+"/"+GetUsername(c))
			})

			req := httptest.NewRequest("GET", "/api/contracts", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.status {
				t.Fatalf("Expected status %d, got %d", tt.status, w.Code)
			}
			if tt.status == http.StatusOK && w.Body.String() != "studio-rossi/mario" {
				t.Errorf("Expected tenant and user, got %q", w.Body.String())
			}
			if tt.message != "" && !strings.Contains(w.Body.String(), tt.message) {
				t.Errorf("Expected %q in %s", tt.message, w.Body.String())
			}
		})
	}
}

func TestAuthMiddlewareScopesRequestContext(t *testing.T) {
	token, _, _ := GenerateToken("mario", "studio-rossi", testAuth)

	var tenant, username any
	router := gin.New()
	router.Use(AuthMiddleware(testAuth))
	router.GET("/api/stats", func(c *gin.Context) {
		tenant = c.Request.Context().Value(logger.TenantKey)
		username = c.Request.Context().Value(logger.UsernameKey)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/api/stats", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(httptest.NewRecorder(), req)

	if tenant != "studio-rossi" || username != "mario" {
		t.Errorf("Expected tenant and username in request context, got %v %v", tenant, username)
	}
}

func TestGetTenantBeforeAuth(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if GetTenant(c) != "" || GetUsername(c) != "" {
		t.Error("Expected empty tenant and username before auth")
	}
}
