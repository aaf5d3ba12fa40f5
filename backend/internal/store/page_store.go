package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// Page 组织下的协作页面
type Page struct {
	ID        string    `gorm:"type:char(36);primaryKey" json:"id"`
	OrgID     string    `gorm:"type:char(36);not null;index" json:"orgId"`
	Title     string    `gorm:"type:varchar(255);not null" json:"title"`
	OwnerID   string    `gorm:"type:char(36);not null" json:"ownerId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Block 页面内的有序内容块，sort_key 用分数索引（NUMERIC(18,9)）排序
type Block struct {
	ID        string    `gorm:"type:char(36);primaryKey" json:"id"`
	PageID    string    `gorm:"type:char(36);not null;index" json:"pageId"`
	BlockType string    `gorm:"type:varchar(32);not null" json:"blockType"`
	Content   string    `gorm:"type:text" json:"content"`
	SortKey   string    `gorm:"type:decimal(18,9);not null" json:"sortKey"`
	CreatedAt time.Time `json:"createdAt"`
}

type PageStore struct{ db *gorm.DB }

func NewPageStore(db *gorm.DB) *PageStore {
	return &PageStore{db: db}
}

func (s *PageStore) CreatePage(ctx context.Context, p *Page) error {
	return s.db.WithContext(ctx).Create(p).Error
}

// RenamePage 返回旧标题（重命名事件通知要带 oldTitle）
func (s *PageStore) RenamePage(ctx context.Context, pageID, newTitle string) (string, error) {
	var p Page
	if err := s.db.WithContext(ctx).First(&p, "id = ?", pageID).Error; err != nil {
		return "", err
	}
	oldTitle := p.Title
	if err := s.db.WithContext(ctx).Model(&p).Update("title", newTitle).Error; err != nil {
		return "", err
	}
	return oldTitle, nil
}

// DeletePage 返回被删页面的标题（删除事件通知要带 title）
func (s *PageStore) DeletePage(ctx context.Context, pageID string) (string, error) {
	var p Page
	if err := s.db.WithContext(ctx).First(&p, "id = ?", pageID).Error; err != nil {
		return "", err
	}
	if err := s.db.WithContext(ctx).Delete(&Page{}, "id = ?", pageID).Error; err != nil {
		return "", err
	}
	return p.Title, nil
}

func (s *PageStore) GetPage(ctx context.Context, pageID string) (*Page, error) {
	var p Page
	if err := s.db.WithContext(ctx).First(&p, "id = ?", pageID).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PageStore) AddBlock(ctx context.Context, b *Block) error {
	return s.db.WithContext(ctx).Create(b).Error
}

func (s *PageStore) GetBlock(ctx context.Context, blockID string) (*Block, error) {
	var b Block
	if err := s.db.WithContext(ctx).First(&b, "id = ?", blockID).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

// LastBlock 返回页面里 sort_key 最大的块；页面还没有块时返回 (nil, nil)
func (s *PageStore) LastBlock(ctx context.Context, pageID string) (*Block, error) {
	var b Block
	err := s.db.WithContext(ctx).
		Where("page_id = ?", pageID).
		Order("sort_key desc").
		First(&b).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &b, nil
}

// ListBlocks 按 sort_key 升序返回页面的所有块
func (s *PageStore) ListBlocks(ctx context.Context, pageID string) ([]Block, error) {
	var blocks []Block
	err := s.db.WithContext(ctx).
		Where("page_id = ?", pageID).
		Order("sort_key asc").
		Find(&blocks).Error
	return blocks, err
}
