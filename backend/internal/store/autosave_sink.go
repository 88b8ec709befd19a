package store

import "context"

// AutoSaveSink 是 auto-save 的落盘组合：先追加快照历史，再把文档行推进到
// 最新版本。两步不在同一事务里：快照历史允许领先于文档行，反向不允许。
type AutoSaveSink struct {
	snapshots *SnapshotStore
	documents *DocumentStore
}

func NewAutoSaveSink(snapshots *SnapshotStore, documents *DocumentStore) *AutoSaveSink {
	return &AutoSaveSink{snapshots: snapshots, documents: documents}
}

func (s *AutoSaveSink) SaveSnapshot(ctx context.Context, documentID string, version uint64, content []byte) error {
	if err := s.snapshots.SaveSnapshot(ctx, documentID, version, content); err != nil {
		return err
	}
	return s.documents.UpdateSnapshot(ctx, documentID, version, content)
}
