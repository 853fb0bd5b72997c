package utils

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// MaxImageBytes 单张图片上限 5MB
const MaxImageBytes = 5 * 1024 * 1024

var (
	// ErrNotImage 文件内容不是图片
	ErrNotImage = errors.New("Please select a valid image file (JPG, PNG, GIF, WebP).")
	// ErrImageTooLarge 文件超过大小限制
	ErrImageTooLarge = errors.New("File size must be less than 5MB.")
)

// DetectImageType 根据文件内容嗅探 MIME 类型，不是图片时返回 ErrNotImage
// 声明的 Content-Type 仅在内容无法识别时作为参考
func DetectImageType(data []byte, declared string) (string, error) {
	detected := mimetype.Detect(data)
	if strings.HasPrefix(detected.String(), "image/") {
		return detected.String(), nil
	}
	// 内容无法识别（如 SVG 文本），退回声明类型
	if detected.Is("application/octet-stream") && strings.HasPrefix(strings.ToLower(declared), "image/") {
		return declared, nil
	}
	return "", fmt.Errorf("%w (detected %s)", ErrNotImage, detected.String())
}

// ValidateImage 校验图片类型和大小
func ValidateImage(data []byte, declared string) (string, error) {
	if len(data) > MaxImageBytes {
		return "", ErrImageTooLarge
	}
	return DetectImageType(data, declared)
}
