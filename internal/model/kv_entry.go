package model

import "time"

// KVEntry 按命名空间隔离的字符串键值，用作浏览器 localStorage 的服务端替身
type KVEntry struct {
	Namespace string    `gorm:"primaryKey;size:128;comment:命名空间(viewer:<id>)"`
	Key       string    `gorm:"column:kv_key;primaryKey;size:128;comment:键"`
	Value     string    `gorm:"type:text;not null;comment:值"`
	UpdatedAt time.Time `gorm:"index"`
}

func (*KVEntry) TableName() string {
	return "kv_entries"
}
