package store

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// Document 是内容记录在持久层的行：最近一次落盘的内容与版本。
// 内容对本服务不透明，按字节存取。
type Document struct {
	ID      string `gorm:"primaryKey;size:64"`
	OwnerID string `gorm:"size:64;index"`
	Title   string `gorm:"size:255;uniqueIndex"`
	Content []byte `gorm:"type:mediumblob"`
	Version uint64 `gorm:"not null;default:0"`
}

type DocumentStore struct{ db *gorm.DB }

func NewDocumentStore(db *gorm.DB) *DocumentStore {
	return &DocumentStore{db: db}
}

// LoadDocument 读取文档的最近内容与版本，作为会话惰性创建的种子
// （实现 collab.ContentLoader）。文档不存在时按空文档返回。
func (s *DocumentStore) LoadDocument(ctx context.Context, documentID string) ([]byte, uint64, error) {
	var doc Document
	err := s.db.WithContext(ctx).Select("content", "version").
		Where("id = ?", documentID).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	return doc.Content, doc.Version, nil
}

func (s *DocumentStore) GetDocumentID(ctx context.Context, title string) (string, error) {
	var doc Document
	err := s.db.WithContext(ctx).Select("id").
		Where("title = ?", title).First(&doc).Error
	return doc.ID, err
}

func (s *DocumentStore) CreateDocument(ctx context.Context, id, ownerID, title string) error {
	return s.db.WithContext(ctx).Create(&Document{ID: id, OwnerID: ownerID, Title: title}).Error
}

// UpdateSnapshot 把最新落盘内容写回文档行（auto-save 之后对外可见的真值）。
func (s *DocumentStore) UpdateSnapshot(ctx context.Context, documentID string, version uint64, content []byte) error {
	return s.db.WithContext(ctx).Model(&Document{}).
		Where("id = ? AND version < ?", documentID, version).
		Updates(map[string]any{"content": content, "version": version}).Error
}
