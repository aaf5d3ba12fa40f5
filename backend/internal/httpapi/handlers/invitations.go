package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"relay-service/backend/internal/notify"
	"relay-service/backend/internal/store"
)

type InvitationsHandler struct {
	store    *store.InvitationStore
	notifier *notify.Notifier
}

func NewInvitationsHandler(s *store.InvitationStore, n *notify.Notifier) *InvitationsHandler {
	return &InvitationsHandler{store: s, notifier: n}
}

type createInvitationRequest struct {
	InvitedUserID string `json:"invitedUserId" binding:"required"`
	Role          string `json:"role" binding:"required"`
}

func (h *InvitationsHandler) CreateInvitation(c *gin.Context) {
	orgID := c.Param("orgId")
	if _, err := uuid.Parse(orgID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "VALIDATION", "message": "invalid org id"})
		return
	}
	var req createInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "VALIDATION", "message": err.Error()})
		return
	}
	if _, err := uuid.Parse(req.InvitedUserID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "VALIDATION", "message": "invalid invited user id"})
		return
	}

	ctx := c.Request.Context()
	inviterID := c.GetString("userId")

	orgName, err := h.store.GetOrgName(ctx, orgID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": "NOT_FOUND", "message": "org not found"})
		return
	}
	inviterName, err := h.store.GetUserName(ctx, inviterID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL", "message": "load inviter failed"})
		return
	}

	inv := &store.Invitation{
		ID:            uuid.NewString(),
		OrgID:         orgID,
		InvitedUserID: req.InvitedUserID,
		InviterUserID: inviterID,
		Role:          req.Role,
		CreatedAt:     time.Now(),
	}
	if err := h.store.CreateInvitation(ctx, inv); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL", "message": "create invitation failed"})
		return
	}

	// 被邀请人在线就实时收到；不在线这条通知就丢了（持久记录在 invitations 表里）
	h.notifier.PublishInvitation(ctx, req.InvitedUserID, notify.InvitationNotification{
		InvitationID:  inv.ID,
		OrgID:         orgID,
		OrgName:       orgName,
		InviterUserID: inviterID,
		InviterName:   inviterName,
		Role:          req.Role,
		CreatedAt:     inv.CreatedAt,
	})

	c.JSON(http.StatusOK, gin.H{"invitationId": inv.ID, "orgId": orgID, "invitedUserId": req.InvitedUserID})
}

// SubscribeInvitations 当前登录用户的邀请通知 SSE 流
func (h *InvitationsHandler) SubscribeInvitations(c *gin.Context) {
	userID := c.GetString("userId")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHENTICATED", "message": "user context missing"})
		return
	}

	sub, cancel := h.notifier.Invitations.Subscribe(userID)
	streamSSE(c, "Connected to invitation notifications", sub, cancel)
}
