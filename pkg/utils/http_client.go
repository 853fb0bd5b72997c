package utils

import (
	"time"

	"github.com/go-resty/resty/v2"
)

// HTTPClientOptions 统一 HTTP 客户端参数
type HTTPClientOptions struct {
	BaseURL   string
	Timeout   time.Duration
	Debug     bool
	UserAgent string
	ProxyURL  string // 为空时直连
}

// NewHTTPClient 创建一个配置好超时、UA 和代理的 Resty 客户端
// 它是全系统统一的网络请求入口
func NewHTTPClient(opts HTTPClientOptions) *resty.Client {
	client := resty.New().
		SetBaseURL(opts.BaseURL).
		SetDebug(opts.Debug).
		SetTimeout(opts.Timeout).
		SetRetryCount(0). // 重试策略由调用方决定
		SetHeader("User-Agent", opts.UserAgent).
		SetHeader("Accept", "application/json")

	if opts.ProxyURL != "" {
		client.SetProxy(opts.ProxyURL)
	}

	return client
}
