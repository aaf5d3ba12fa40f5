package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"
)

// SnapshotArchiveStore 快照的 MySQL 归档（Redis 工作集的持久尾巴）。
// 表：document_snapshots(page_id, seq, data)，(page_id, seq) 唯一。
type SnapshotArchiveStore struct{ db *sql.DB }

func NewSnapshotArchiveStore(db *sql.DB) *SnapshotArchiveStore {
	return &SnapshotArchiveStore{db: db}
}

func (s *SnapshotArchiveStore) SaveDocumentSnapshot(ctx context.Context, pageID string, seq uint64, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO document_snapshots (page_id, seq, data)
		VALUES (?, ?, ?)`,
		pageID,
		seq,
		data,
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		// 重复键说明同一个序号已经归档过，当作成功
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return nil
		}
		return err
	}
	return nil
}

// LastSeq 该页面归档里已有的最大序号；没有行返回 0。
// 调用方（relay）用它在进程重启后接着历史序号继续发号。
func (s *SnapshotArchiveStore) LastSeq(ctx context.Context, pageID string) (uint64, error) {
	var seq uint64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM document_snapshots WHERE page_id = ?`,
		pageID,
	).Scan(&seq)
	if err != nil {
		return 0, err
	}
	return seq, nil
}
