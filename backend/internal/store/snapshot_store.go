package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"
)

// SnapshotStore 以 (document_id, version) 为唯一键追加快照历史，
// 实现 collab.Saver。auto-save 对同一版本可能重复落盘，重复键按成功处理。
type SnapshotStore struct{ db *sql.DB }

func NewSnapshotStore(db *sql.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

func (s *SnapshotStore) SaveSnapshot(ctx context.Context, documentID string, version uint64, content []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO document_snapshots (document_id, version, content)
		VALUES (?, ?, ?)`,
		documentID,
		version,
		content,
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return nil
		}
		return err
	}
	return nil
}
