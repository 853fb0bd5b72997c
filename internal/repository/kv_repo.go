package repository

import (
	"context"
	"errors"
	"time"

	"charity_bff_v1/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// KVRepository 按命名空间隔离的键值存储
type KVRepository interface {
	Get(ctx context.Context, namespace, key string) (string, bool, error)
	Set(ctx context.Context, namespace, key, value string) error
	Remove(ctx context.Context, namespace, key string) error
	CountNamespace(ctx context.Context, namespace string) (int64, error)
}

type kvRepository struct {
	db *gorm.DB
}

// NewKVRepository 创建键值仓库
func NewKVRepository(db *gorm.DB) KVRepository {
	return &kvRepository{db: db}
}

// Get 读取，不存在时 ok=false
func (r *kvRepository) Get(ctx context.Context, namespace, key string) (string, bool, error) {
	var entry model.KVEntry
	err := r.db.WithContext(ctx).
		Where("namespace = ? AND kv_key = ?", namespace, key).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return entry.Value, true, nil
}

// Set 写入（存在则覆盖）
func (r *kvRepository) Set(ctx context.Context, namespace, key, value string) error {
	entry := model.KVEntry{
		Namespace: namespace,
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now(),
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "namespace"}, {Name: "kv_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
}

// Remove 删除，不存在时不报错
func (r *kvRepository) Remove(ctx context.Context, namespace, key string) error {
	return r.db.WithContext(ctx).
		Where("namespace = ? AND kv_key = ?", namespace, key).
		Delete(&model.KVEntry{}).Error
}

// CountNamespace 命名空间下的条目数
func (r *kvRepository) CountNamespace(ctx context.Context, namespace string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.KVEntry{}).
		Where("namespace = ?", namespace).
		Count(&count).Error
	return count, err
}

// ==================== 命名空间视图 ====================

// ViewerNamespace 每个访问者一个命名空间
func ViewerNamespace(viewerID string) string {
	return "viewer:" + viewerID
}

// ScopedKV 固定命名空间的键值视图，满足 service.FallbackStore
type ScopedKV struct {
	repo      KVRepository
	namespace string
}

// NewScopedKV 创建命名空间视图
func NewScopedKV(repo KVRepository, namespace string) *ScopedKV {
	return &ScopedKV{repo: repo, namespace: namespace}
}

// Get 读取
func (s *ScopedKV) Get(ctx context.Context, key string) (string, bool, error) {
	return s.repo.Get(ctx, s.namespace, key)
}

// Set 写入
func (s *ScopedKV) Set(ctx context.Context, key, value string) error {
	return s.repo.Set(ctx, s.namespace, key, value)
}

// Remove 删除
func (s *ScopedKV) Remove(ctx context.Context, key string) error {
	return s.repo.Remove(ctx, s.namespace, key)
}
