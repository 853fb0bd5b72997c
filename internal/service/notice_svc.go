package service

import (
	"sync"
	"time"

	"charity_bff_v1/internal/api/dto"
)

// 每个用户最多保留的提示条数，超出时丢弃最旧的
const maxNoticesPerViewer = 50

// NoticeBox 按用户缓存的异步提示（点赞回滚等），由前端轮询取走
type NoticeBox struct {
	mu    sync.Mutex
	boxes map[string][]dto.Notice
	now   func() time.Time
}

// NewNoticeBox 创建提示箱
func NewNoticeBox() *NoticeBox {
	return &NoticeBox{
		boxes: make(map[string][]dto.Notice),
		now:   time.Now,
	}
}

// Notify 投递提示
func (b *NoticeBox) Notify(viewerID string, n dto.Notice) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n.CreatedAt.IsZero() {
		n.CreatedAt = b.now()
	}
	box := append(b.boxes[viewerID], n)
	if len(box) > maxNoticesPerViewer {
		box = box[len(box)-maxNoticesPerViewer:]
	}
	b.boxes[viewerID] = box
}

// Drain 取走并清空该用户的全部提示
func (b *NoticeBox) Drain(viewerID string) []dto.Notice {
	b.mu.Lock()
	defer b.mu.Unlock()

	box := b.boxes[viewerID]
	delete(b.boxes, viewerID)
	if box == nil {
		return []dto.Notice{}
	}
	return box
}
