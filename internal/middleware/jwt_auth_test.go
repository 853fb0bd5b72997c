package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"charity_bff_v1/pkg/charity"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func withJWTConfig(t *testing.T, cfg *JWTConfig) {
	t.Helper()
	prev := jwtConfig
	SetJWTConfig(cfg)
	t.Cleanup(func() { jwtConfig = prev })
}

func signClaims(t *testing.T, claims jwt.Claims, secret string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestParseToken_VerifiedMode(t *testing.T) {
	withJWTConfig(t, &JWTConfig{Secret: "s3cret"})

	tok, err := GenerateAccessToken("u1", "campaign-leader", time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.ViewerID())
	assert.Equal(t, "campaign-leader", claims.Role)

	forged := signClaims(t, UserClaims{ID: "u1"}, "other")
	_, err = ParseToken(forged)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	expired := signClaims(t, UserClaims{
		ID:               "u1",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))},
	}, "s3cret")
	_, err = ParseToken(expired)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestParseToken_UnverifiedMode(t *testing.T) {
	withJWTConfig(t, &JWTConfig{})

	tests := []struct {
		name    string
		claims  UserClaims
		wantID  string
		wantErr error
	}{
		{
			name:   "id 字段",
			claims: UserClaims{ID: "a"},
			wantID: "a",
		},
		{
			name:   "user_id 字段",
			claims: UserClaims{UserID: "b"},
			wantID: "b",
		},
		{
			name:   "sub 字段",
			claims: UserClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "c"}},
			wantID: "c",
		},
		{
			name:    "缺少用户 id",
			claims:  UserClaims{Role: "donor"},
			wantErr: ErrTokenInvalid,
		},
		{
			name: "已过期",
			claims: UserClaims{
				ID:               "d",
				RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour))},
			},
			wantErr: ErrTokenExpired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := ParseToken(signClaims(t, tt.claims, "whatever"))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, claims.ViewerID())
		})
	}

	_, err := ParseToken("not-a-jwt")
	assert.ErrorIs(t, err, ErrTokenInvalid)
	_, err = ParseToken("")
	assert.ErrorIs(t, err, ErrTokenMissing)
}

func TestJWTAuth_ForwardsToken(t *testing.T) {
	withJWTConfig(t, &JWTConfig{Secret: "s3cret"})
	tok, err := GenerateAccessToken("u1", "admin", time.Hour)
	require.NoError(t, err)

	r := gin.New()
	r.GET("/me", JWTAuth(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"viewer":    GetViewerID(c),
			"role":      GetUserRole(c),
			"forwarded": charity.AccessTokenFrom(c.Request.Context()),
			"authed":    TokenAuthChecker{}.IsAuthenticated(c.Request.Context()),
		})
	})

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"缺少 Authorization", "", http.StatusUnauthorized},
		{"非 Bearer", "Basic abc", http.StatusUnauthorized},
		{"无效令牌", "Bearer nope", http.StatusUnauthorized},
		{"有效令牌", "Bearer " + tok, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Contains(t, w.Body.String(), `"viewer":"u1"`)
				assert.Contains(t, w.Body.String(), `"forwarded":"`+tok+`"`)
				assert.Contains(t, w.Body.String(), `"authed":true`)
			}
		})
	}
}

func TestRequireRoleAndOptionalAuth(t *testing.T) {
	withJWTConfig(t, &JWTConfig{Secret: "s3cret"})
	donor, err := GenerateAccessToken("u2", "donor", time.Hour)
	require.NoError(t, err)
	leader, err := GenerateAccessToken("u3", "campaign-leader", time.Hour)
	require.NoError(t, err)

	r := gin.New()
	r.POST("/wizard", JWTAuth(), RequireRole("campaign-leader", "admin"), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	r.GET("/public", OptionalAuth(), func(c *gin.Context) {
		c.String(http.StatusOK, GetViewerID(c))
	})

	do := func(method, path, tok string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, nil)
		if tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusForbidden, do(http.MethodPost, "/wizard", donor).Code)
	assert.Equal(t, http.StatusNoContent, do(http.MethodPost, "/wizard", leader).Code)

	w := do(http.MethodGet, "/public", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())

	w = do(http.MethodGet, "/public", "garbage")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())

	w = do(http.MethodGet, "/public", donor)
	assert.Equal(t, "u2", w.Body.String())
}

func TestTokenAuthChecker_NoToken(t *testing.T) {
	withJWTConfig(t, &JWTConfig{})
	assert.False(t, TokenAuthChecker{}.IsAuthenticated(context.Background()))
}
