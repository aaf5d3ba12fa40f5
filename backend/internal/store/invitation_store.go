package store

import (
	"context"
	"database/sql"
	"time"
)

type Invitation struct {
	ID            string
	OrgID         string
	OrgName       string
	InvitedUserID string
	InviterUserID string
	InviterName   string
	Role          string
	CreatedAt     time.Time
}

type InvitationStore struct{ db *sql.DB }

func NewInvitationStore(db *sql.DB) *InvitationStore {
	return &InvitationStore{db: db}
}

func (s *InvitationStore) CreateInvitation(ctx context.Context, inv *Invitation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO invitations (id, org_id, invited_user_id, inviter_user_id, role, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		inv.ID,
		inv.OrgID,
		inv.InvitedUserID,
		inv.InviterUserID,
		inv.Role,
		inv.CreatedAt,
	)
	return err
}

// GetOrgName 通知信封要带组织名
func (s *InvitationStore) GetOrgName(ctx context.Context, orgID string) (string, error) {
	var name string
	err := s.db.QueryRowContext(ctx,
		`SELECT name FROM organizations WHERE id = ?`,
		orgID,
	).Scan(&name)
	// sql.ErrNoRows
	return name, err
}

// GetUserName 通知信封要带邀请人用户名
func (s *InvitationStore) GetUserName(ctx context.Context, userID string) (string, error) {
	var name string
	err := s.db.QueryRowContext(ctx,
		`SELECT username FROM users WHERE id = ?`,
		userID,
	).Scan(&name)
	return name, err
}
