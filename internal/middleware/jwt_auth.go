package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"charity_bff_v1/pkg/charity"
)

// ==================== JWT 配置 ====================

// JWTConfig JWT 配置
// 令牌由平台签发，BFF 只负责识别访问者并原样转发
// Secret 为空时不校验签名，只解析声明并检查过期时间
type JWTConfig struct {
	Secret string
	Issuer string
}

var jwtConfig = &JWTConfig{}

// SetJWTConfig 设置 JWT 配置
func SetJWTConfig(cfg *JWTConfig) {
	if cfg == nil {
		cfg = &JWTConfig{}
	}
	jwtConfig = cfg
}

// ==================== Claims 定义 ====================

// UserClaims 平台令牌声明
// 平台不同版本的用户 id 字段名不一致，按 id / user_id / sub 依次取
type UserClaims struct {
	ID     string `json:"id,omitempty"`
	UserID string `json:"user_id,omitempty"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// ViewerID 访问者 id
func (c *UserClaims) ViewerID() string {
	switch {
	case c.ID != "":
		return c.ID
	case c.UserID != "":
		return c.UserID
	default:
		return c.Subject
	}
}

var (
	ErrTokenMissing = errors.New("token missing")
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
)

// ==================== Token 生成与解析 ====================

// GenerateAccessToken 签发令牌，仅用于本地联调和测试
func GenerateAccessToken(viewerID, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := UserClaims{
		ID:   viewerID,
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   viewerID,
			Issuer:    jwtConfig.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(jwtConfig.Secret))
}

// ParseToken 解析令牌
func ParseToken(tokenString string) (*UserClaims, error) {
	if tokenString == "" {
		return nil, ErrTokenMissing
	}

	claims := &UserClaims{}
	if jwtConfig.Secret == "" {
		if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
			return nil, ErrTokenInvalid
		}
		if claims.ExpiresAt != nil && !claims.ExpiresAt.After(time.Now()) {
			return nil, ErrTokenExpired
		}
	} else {
		token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, ErrTokenInvalid
			}
			return []byte(jwtConfig.Secret), nil
		})
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				return nil, ErrTokenExpired
			}
			return nil, ErrTokenInvalid
		}
		if !token.Valid {
			return nil, ErrTokenInvalid
		}
	}

	if claims.ViewerID() == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// ==================== Context Keys ====================

const (
	ContextKeyViewerID = "viewer_id"
	ContextKeyRole     = "role"
	ContextKeyClaims   = "claims"
	ContextKeyToken    = "token"
)

// ==================== 中间件 ====================

// JWTAuth 必须登录
func JWTAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearerToken(c)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    401,
				"message": "Unauthorized",
			})
			return
		}

		claims, err := ParseToken(tokenString)
		if err != nil {
			message := "Invalid token"
			if errors.Is(err, ErrTokenExpired) {
				message = "Token expired"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    401,
				"message": message,
			})
			return
		}

		bind(c, tokenString, claims)
		c.Next()
	}
}

// RequireRole 角色校验，需在 JWTAuth 之后使用
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := GetUserRole(c)
		for _, r := range roles {
			if role == r {
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"code":    403,
			"message": "Forbidden",
		})
	}
}

// OptionalAuth 可选登录，令牌无效时按匿名访问处理
func OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearerToken(c)
		if tokenString != "" {
			if claims, err := ParseToken(tokenString); err == nil {
				bind(c, tokenString, claims)
			}
		}
		c.Next()
	}
}

// bind 写入 gin 上下文，并把令牌挂到 request context 供平台客户端转发
func bind(c *gin.Context, tokenString string, claims *UserClaims) {
	c.Set(ContextKeyViewerID, claims.ViewerID())
	c.Set(ContextKeyRole, claims.Role)
	c.Set(ContextKeyClaims, claims)
	c.Set(ContextKeyToken, tokenString)
	c.Request = c.Request.WithContext(charity.WithAccessToken(c.Request.Context(), tokenString))
}

func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// ==================== 辅助函数 ====================

// GetViewerID 访问者 id，匿名时为空
func GetViewerID(c *gin.Context) string {
	return c.GetString(ContextKeyViewerID)
}

// GetUserRole 访问者角色
func GetUserRole(c *gin.Context) string {
	return c.GetString(ContextKeyRole)
}

// GetUserClaims 完整声明
func GetUserClaims(c *gin.Context) *UserClaims {
	if claims, exists := c.Get(ContextKeyClaims); exists {
		if uc, ok := claims.(*UserClaims); ok {
			return uc
		}
	}
	return nil
}

// ==================== 登录状态检查 ====================

// TokenAuthChecker 根据 context 中转发的令牌判断是否仍处于登录状态
// 点赞遇到 unauthorized 时用它决定是否值得重试
type TokenAuthChecker struct{}

// IsAuthenticated 令牌存在且未过期
func (TokenAuthChecker) IsAuthenticated(ctx context.Context) bool {
	_, err := ParseToken(charity.AccessTokenFrom(ctx))
	return err == nil
}
