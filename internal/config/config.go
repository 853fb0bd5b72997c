package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ==================== 配置定义 ====================

// Config 服务配置，全部来自环境变量（可由 .env 文件补充）
type Config struct {
	AppEnv     string `mapstructure:"APP_ENV" validate:"oneof=development production test"`
	ServerPort int    `mapstructure:"SERVER_PORT" validate:"min=1,max=65535"`
	LogLevel   string `mapstructure:"LOG_LEVEL" validate:"oneof=debug info warn error"`

	// 平台 API
	CharityAPIBaseURL string        `mapstructure:"CHARITY_API_BASE_URL" validate:"required,url"`
	CharityAPITimeout time.Duration `mapstructure:"CHARITY_API_TIMEOUT" validate:"gt=0"`
	CharityAPIDebug   bool          `mapstructure:"CHARITY_API_DEBUG"`
	CharityAPIProxy   string        `mapstructure:"CHARITY_API_PROXY" validate:"omitempty,url"`

	// 点赞兜底存储
	DBDriver string `mapstructure:"DB_DRIVER" validate:"oneof=sqlite postgres"`
	DBDSN    string `mapstructure:"DB_DSN" validate:"required"`

	// 为空时只解析令牌不校验签名，生产环境必须配置
	JWTSecret string `mapstructure:"JWT_SECRET" validate:"required_if=AppEnv production"`

	LikeTimeout    time.Duration `mapstructure:"LIKE_TIMEOUT" validate:"gt=0"`
	LikeRetryDelay time.Duration `mapstructure:"LIKE_RETRY_DELAY" validate:"gte=0"`

	WizardSessionTTL time.Duration `mapstructure:"WIZARD_SESSION_TTL" validate:"gt=0"`
	WizardSweepCron  string        `mapstructure:"WIZARD_SWEEP_CRON" validate:"required"`

	// 限流：每 interval 补充一次，最多积攒 burst 次
	LikeRateInterval    time.Duration `mapstructure:"LIKE_RATE_INTERVAL" validate:"gte=0"`
	LikeRateBurst       int           `mapstructure:"LIKE_RATE_BURST" validate:"gte=1"`
	PublishRateInterval time.Duration `mapstructure:"PUBLISH_RATE_INTERVAL" validate:"gte=0"`
	PublishRateBurst    int           `mapstructure:"PUBLISH_RATE_BURST" validate:"gte=1"`
}

// defaults 默认值，同时决定 viper 识别哪些环境变量
var defaults = map[string]interface{}{
	"APP_ENV":     "development",
	"SERVER_PORT": 8080,
	"LOG_LEVEL":   "info",

	"CHARITY_API_BASE_URL": "http://localhost:5000/api",
	"CHARITY_API_TIMEOUT":  15 * time.Second,
	"CHARITY_API_DEBUG":    false,
	"CHARITY_API_PROXY":    "",

	"DB_DRIVER": "sqlite",
	"DB_DSN":    "file:charity_bff.db?_busy_timeout=5000",

	"JWT_SECRET": "",

	"LIKE_TIMEOUT":     10 * time.Second,
	"LIKE_RETRY_DELAY": 250 * time.Millisecond,

	"WIZARD_SESSION_TTL": 24 * time.Hour,
	"WIZARD_SWEEP_CRON":  "0 */10 * * * *",

	"LIKE_RATE_INTERVAL":    200 * time.Millisecond,
	"LIKE_RATE_BURST":       5,
	"PUBLISH_RATE_INTERVAL": 5 * time.Second,
	"PUBLISH_RATE_BURST":    2,
}

// IsProduction 是否生产环境
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Addr 监听地址
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.ServerPort)
}

// ==================== 加载 ====================

// Load 读取配置
// envFile 不为空时先加载该文件，文件不存在不算错误，已存在的环境变量优先
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.AppEnv = strings.ToLower(strings.TrimSpace(cfg.AppEnv))
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ==================== 日志 ====================

// NewLogger 生产环境输出 JSON，其余环境输出彩色控制台格式
func NewLogger(cfg *Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}

	var zc zap.Config
	if cfg.IsProduction() {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
