package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"relay-service/backend/internal/notify"
	"relay-service/backend/internal/sortkey"
	"relay-service/backend/internal/store"
)

type PagesHandler struct {
	store    *store.PageStore
	notifier *notify.Notifier
}

func NewPagesHandler(s *store.PageStore, n *notify.Notifier) *PagesHandler {
	return &PagesHandler{store: s, notifier: n}
}

type createPageRequest struct {
	OrgID string `json:"orgId" binding:"required"`
	Title string `json:"title" binding:"required"`
}

func (h *PagesHandler) CreatePage(c *gin.Context) {
	var req createPageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "VALIDATION", "message": err.Error()})
		return
	}
	if _, err := uuid.Parse(req.OrgID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "VALIDATION", "message": "invalid org id"})
		return
	}
	userID := c.GetString("userId")

	p := &store.Page{
		ID:      uuid.NewString(),
		OrgID:   req.OrgID,
		Title:   req.Title,
		OwnerID: userID,
	}
	if err := h.store.CreatePage(c.Request.Context(), p); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL", "message": "create page failed"})
		return
	}

	// 发布方不关心当前有没有订阅者在线
	h.notifier.PublishPageEvent(c.Request.Context(), p.OrgID, notify.PageNotification{
		EventType:   notify.PageCreated,
		PageID:      p.ID,
		OrgID:       p.OrgID,
		Title:       p.Title,
		ActorUserID: userID,
		Timestamp:   time.Now(),
	})

	c.JSON(http.StatusOK, p)
}

type renamePageRequest struct {
	Title string `json:"title" binding:"required"`
}

func (h *PagesHandler) RenamePage(c *gin.Context) {
	pageID := c.Param("pageId")
	if _, err := uuid.Parse(pageID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "VALIDATION", "message": "invalid page id"})
		return
	}
	var req renamePageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "VALIDATION", "message": err.Error()})
		return
	}

	oldTitle, err := h.store.RenamePage(c.Request.Context(), pageID, req.Title)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": "NOT_FOUND", "message": "page not found"})
		return
	}

	p, err := h.store.GetPage(c.Request.Context(), pageID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL", "message": "load page failed"})
		return
	}

	h.notifier.PublishPageEvent(c.Request.Context(), p.OrgID, notify.PageNotification{
		EventType:   notify.PageRenamed,
		PageID:      pageID,
		OrgID:       p.OrgID,
		Title:       req.Title,
		OldTitle:    oldTitle,
		ActorUserID: c.GetString("userId"),
		Timestamp:   time.Now(),
	})

	c.JSON(http.StatusOK, p)
}

func (h *PagesHandler) DeletePage(c *gin.Context) {
	pageID := c.Param("pageId")
	if _, err := uuid.Parse(pageID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "VALIDATION", "message": "invalid page id"})
		return
	}

	p, err := h.store.GetPage(c.Request.Context(), pageID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": "NOT_FOUND", "message": "page not found"})
		return
	}
	title, err := h.store.DeletePage(c.Request.Context(), pageID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL", "message": "delete page failed"})
		return
	}

	h.notifier.PublishPageEvent(c.Request.Context(), p.OrgID, notify.PageNotification{
		EventType:   notify.PageDeleted,
		PageID:      pageID,
		OrgID:       p.OrgID,
		Title:       title,
		ActorUserID: c.GetString("userId"),
		Timestamp:   time.Now(),
	})

	c.JSON(http.StatusOK, gin.H{"deleted": pageID})
}

type addBlockRequest struct {
	BlockType string `json:"blockType" binding:"required"`
	Content   string `json:"content"`
	// 新块插在 prevBlockId 之后、nextBlockId 之前；都不传表示追加到末尾
	PrevBlockID string `json:"prevBlockId"`
	NextBlockID string `json:"nextBlockId"`
}

// AddBlock 在页面里插入一个有序块。
// 排序键用分数索引: 取两个邻居键的中点，并发插入不需要给兄弟块重新编号。
func (h *PagesHandler) AddBlock(c *gin.Context) {
	pageID := c.Param("pageId")
	if _, err := uuid.Parse(pageID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "VALIDATION", "message": "invalid page id"})
		return
	}
	var req addBlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "VALIDATION", "message": err.Error()})
		return
	}

	ctx := c.Request.Context()
	var before, after *sortkey.SortKey

	if req.PrevBlockID != "" {
		b, err := h.store.GetBlock(ctx, req.PrevBlockID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"code": "NOT_FOUND", "message": "prev block not found"})
			return
		}
		k, err := sortkey.Parse(b.SortKey)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL", "message": "corrupt sort key"})
			return
		}
		before = &k
	}
	if req.NextBlockID != "" {
		b, err := h.store.GetBlock(ctx, req.NextBlockID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"code": "NOT_FOUND", "message": "next block not found"})
			return
		}
		k, err := sortkey.Parse(b.SortKey)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL", "message": "corrupt sort key"})
			return
		}
		after = &k
	}
	if before == nil && after == nil {
		// 默认追加到页面末尾
		last, err := h.store.LastBlock(ctx, pageID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL", "message": "load blocks failed"})
			return
		}
		if last != nil {
			k, err := sortkey.Parse(last.SortKey)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL", "message": "corrupt sort key"})
				return
			}
			before = &k
		}
	}

	key, err := sortkey.Between(before, after)
	if err != nil {
		// before >= after 属于调用方错误；精度耗尽也原样暴露，不静默处理
		c.JSON(http.StatusBadRequest, gin.H{"code": "VALIDATION", "message": fmt.Sprintf("sort key: %v", err)})
		return
	}

	block := &store.Block{
		ID:        uuid.NewString(),
		PageID:    pageID,
		BlockType: req.BlockType,
		Content:   req.Content,
		SortKey:   key.String(),
	}
	if err := h.store.AddBlock(ctx, block); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL", "message": "add block failed"})
		return
	}
	c.JSON(http.StatusOK, block)
}

func (h *PagesHandler) ListBlocks(c *gin.Context) {
	pageID := c.Param("pageId")
	if _, err := uuid.Parse(pageID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "VALIDATION", "message": "invalid page id"})
		return
	}
	blocks, err := h.store.ListBlocks(c.Request.Context(), pageID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL", "message": "list blocks failed"})
		return
	}
	c.JSON(http.StatusOK, blocks)
}

// SubscribePageEvents 组织级页面事件的 SSE 订阅流
func (h *PagesHandler) SubscribePageEvents(c *gin.Context) {
	orgID := c.Param("orgId")
	if _, err := uuid.Parse(orgID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "VALIDATION", "message": "invalid org id"})
		return
	}

	sub, cancel := h.notifier.Pages.Subscribe(orgID)
	streamSSE(c, fmt.Sprintf("Connected to page notifications for org %s", orgID), sub, cancel)
}
