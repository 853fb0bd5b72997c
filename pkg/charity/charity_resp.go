package charity

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// NetworkErrorMessage 网络不可达时统一返回的提示
const NetworkErrorMessage = "Network error. Please check your connection."

// FieldDetail 字段级错误（平台返回 msg 或 message）
type FieldDetail struct {
	Msg     string `json:"msg,omitempty"`
	Message string `json:"message,omitempty"`
	Param   string `json:"param,omitempty"`
}

// Text 取 msg，缺失则取 message
func (d FieldDetail) Text() string {
	if d.Msg != "" {
		return d.Msg
	}
	return d.Message
}

// APIError 平台 API 错误
type APIError struct {
	StatusCode int
	Message    string
	Details    []FieldDetail
	Network    bool
}

func (e *APIError) Error() string {
	if len(e.Details) == 0 {
		return e.Message
	}
	texts := make([]string, 0, len(e.Details))
	for _, d := range e.Details {
		if t := d.Text(); t != "" {
			texts = append(texts, t)
		}
	}
	if len(texts) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Message, strings.Join(texts, ", "))
}

// Unauthorized 401 或错误信息中包含 unauthorized
func (e *APIError) Unauthorized() bool {
	if e.StatusCode == http.StatusUnauthorized {
		return true
	}
	return strings.Contains(strings.ToLower(e.Message), "unauthorized")
}

// errorBody 平台错误响应
type errorBody struct {
	Success *bool         `json:"success,omitempty"`
	Error   string        `json:"error"`
	Message string        `json:"message"`
	Details []FieldDetail `json:"details"`
	Errors  []FieldDetail `json:"errors"`
}

// parseAPIError 把非 2xx 响应转换为 APIError
func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		apiErr.Message = eb.Error
		if apiErr.Message == "" {
			apiErr.Message = eb.Message
		}
		apiErr.Details = eb.Details
		if len(apiErr.Details) == 0 {
			apiErr.Details = eb.Errors
		}
	}

	if apiErr.Message == "" {
		apiErr.Message = fmt.Sprintf("request failed with status %d", status)
		if text := http.StatusText(status); text != "" {
			apiErr.Message = text
		}
	}
	return apiErr
}

// envelope 平台通用响应包装 {success, data, message}
type envelope struct {
	Success *bool           `json:"success,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

// unwrapData 存在 data 字段时返回 data，否则返回原始 body
func unwrapData(body []byte) []byte {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return body
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return body
	}
	return env.Data
}
