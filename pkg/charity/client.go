package charity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"charity_bff_v1/pkg/utils"

	"github.com/go-resty/resty/v2"
)

// DefaultBaseURL 本地开发时的平台 API 地址
const DefaultBaseURL = "http://localhost:5000/api"

// Config 客户端配置
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	Debug     bool
	UserAgent string
	ProxyURL  string
}

// Client 平台 API 客户端
// 调用方通过 WithAccessToken 把当前用户的 token 放入 context，客户端负责透传
type Client struct {
	http *resty.Client
	now  func() time.Time
}

// NewClient 创建客户端
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "Charity-BFF/1.0"
	}

	httpClient := utils.NewHTTPClient(utils.HTTPClientOptions{
		BaseURL:   cfg.BaseURL,
		Timeout:   cfg.Timeout,
		Debug:     cfg.Debug,
		UserAgent: cfg.UserAgent,
		ProxyURL:  cfg.ProxyURL,
	})

	return &Client{http: httpClient, now: time.Now}
}

// ==================== Token 透传 ====================

type tokenKey struct{}

// WithAccessToken 把 bearer token 放入 context
func WithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// AccessTokenFrom 读取 context 中的 token
func AccessTokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

// ==================== 点赞 ====================

// LikeCampaign 点赞
func (c *Client) LikeCampaign(ctx context.Context, campaignID string) (*LikeResult, error) {
	var res LikeResult
	if err := c.do(ctx, http.MethodPost, "/campaigns/"+url.PathEscape(campaignID)+"/like", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// UnlikeCampaign 取消点赞
func (c *Client) UnlikeCampaign(ctx context.Context, campaignID string) (*LikeResult, error) {
	var res LikeResult
	if err := c.do(ctx, http.MethodDelete, "/campaigns/"+url.PathEscape(campaignID)+"/like", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ==================== 活动 / 草稿 ====================

// CreateDraft 创建草稿，返回平台分配的 id
func (c *Client) CreateDraft(ctx context.Context, in *CampaignInput) (*DraftCreated, error) {
	var res DraftCreated
	if err := c.do(ctx, http.MethodPost, "/campaigns/drafts", in, &res); err != nil {
		return nil, err
	}
	if res.Campaign.ID == "" {
		return nil, &APIError{StatusCode: http.StatusOK, Message: "draft created without id"}
	}
	return &res, nil
}

// UpdateCampaign 更新草稿或活动
func (c *Client) UpdateCampaign(ctx context.Context, campaignID string, in *CampaignInput) (*Campaign, error) {
	return c.campaignCall(ctx, http.MethodPut, "/campaigns/"+url.PathEscape(campaignID), in)
}

// CreateCampaign 直接创建活动（没有草稿时发布）
func (c *Client) CreateCampaign(ctx context.Context, in *CampaignInput) (*Campaign, error) {
	return c.campaignCall(ctx, http.MethodPost, "/campaigns", in)
}

// PublishCampaign 发布已有草稿：在更新请求中带上 status=active
func (c *Client) PublishCampaign(ctx context.Context, campaignID string, in *CampaignInput) (*Campaign, error) {
	payload := CampaignInput{}
	if in != nil {
		payload = *in
	}
	payload.Status = "active"
	return c.UpdateCampaign(ctx, campaignID, &payload)
}

// GetCampaign 获取活动详情
func (c *Client) GetCampaign(ctx context.Context, campaignID string) (*Campaign, error) {
	return c.campaignCall(ctx, http.MethodGet, "/campaigns/"+url.PathEscape(campaignID), nil)
}

// DeleteDraft 删除草稿
func (c *Client) DeleteDraft(ctx context.Context, campaignID string) error {
	return c.do(ctx, http.MethodDelete, "/campaigns/"+url.PathEscape(campaignID), nil, nil)
}

// GetMyDrafts 当前用户的草稿列表（带时间戳参数避免缓存）
func (c *Client) GetMyDrafts(ctx context.Context) ([]DraftSummary, error) {
	path := "/campaigns/user/drafts?_=" + strconv.FormatInt(c.now().UnixMilli(), 10)

	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}

	var list []DraftSummary
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var wrapped draftsResponse
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("decode drafts: %w", err)
	}
	if wrapped.Drafts != nil {
		return wrapped.Drafts, nil
	}
	return wrapped.Campaigns, nil
}

// ==================== 图片 ====================

// UploadCampaignImages 一次性上传多张图片（multipart 字段名 images）
func (c *Client) UploadCampaignImages(ctx context.Context, files []ImageFile) ([]UploadedImage, error) {
	fields := make([]*resty.MultipartField, 0, len(files))
	for _, f := range files {
		fields = append(fields, &resty.MultipartField{
			Param:       "images",
			FileName:    f.Name,
			ContentType: f.ContentType,
			Reader:      bytes.NewReader(f.Data),
		})
	}

	req := c.request(ctx).SetMultipartFields(fields...)
	resp, err := req.Post("/uploads/campaign-images")
	if err != nil {
		return nil, networkError(err)
	}

	var res uploadResponse
	if err := decode(resp, &res); err != nil {
		return nil, err
	}
	return res.Images, nil
}

// DeleteCampaignImage 按文件名删除已上传的图片
func (c *Client) DeleteCampaignImage(ctx context.Context, filename string) error {
	return c.do(ctx, http.MethodDelete, "/uploads/campaign-images/"+url.PathEscape(filename), nil, nil)
}

// ==================== 用户 ====================

// GetMe 当前登录用户资料
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, &raw); err != nil {
		return nil, err
	}

	var env userEnvelope
	if err := json.Unmarshal(raw, &env); err == nil && env.User != nil {
		return env.User, nil
	}
	var user User
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	return &user, nil
}

// ==================== 内部方法 ====================

func (c *Client) request(ctx context.Context) *resty.Request {
	req := c.http.R().SetContext(ctx)
	if token := AccessTokenFrom(ctx); token != "" {
		req.SetAuthToken(token)
	}
	return req
}

func (c *Client) campaignCall(ctx context.Context, method, path string, in *CampaignInput) (*Campaign, error) {
	var raw json.RawMessage
	var body interface{}
	if in != nil {
		body = in
	}
	if err := c.do(ctx, method, path, body, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return &Campaign{}, nil
	}

	var env campaignEnvelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Campaign != nil {
		return env.Campaign, nil
	}
	var campaign Campaign
	if err := json.Unmarshal(raw, &campaign); err != nil {
		return nil, fmt.Errorf("decode campaign: %w", err)
	}
	return &campaign, nil
}

// do 发送 JSON 请求并把（解包后的）响应写入 out
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	req := c.request(ctx)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return networkError(err)
	}
	return decode(resp, out)
}

func decode(resp *resty.Response, out interface{}) error {
	if !resp.IsSuccess() {
		return parseAPIError(resp.StatusCode(), resp.Body())
	}
	if out == nil {
		return nil
	}
	body := resp.Body()
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(unwrapData(body), out); err != nil {
		return fmt.Errorf("decode response of %s: %w", resp.Request.URL, err)
	}
	return nil
}

// networkError 传输层错误；context 取消/超时原样保留以便上层判断
func networkError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("charity api: %w", err)
	}
	return &APIError{Message: NetworkErrorMessage, Network: true}
}
