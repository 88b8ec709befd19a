package collab

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// AutoSaver 是外部持久化路径：周期性读取有未落盘变更的会话快照，
// 通过 Saver 回调写入持久存储。协调器本身不做任何同步持久化。
type AutoSaver struct {
	co       *Coordinator
	saver    Saver
	interval time.Duration
	log      *zap.Logger
}

func NewAutoSaver(co *Coordinator, saver Saver, interval time.Duration, log *zap.Logger) *AutoSaver {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AutoSaver{co: co, saver: saver, interval: interval, log: log}
}

// Run 周期性 Flush，直到 ctx 结束。结束前做最后一次 Flush，减少停机丢失窗口。
func (a *AutoSaver) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			a.Flush(flushCtx)
			cancel()
			return
		case <-ticker.C:
			a.Flush(ctx)
		}
	}
}

// Flush 把所有 dirty 会话落盘。单个文档失败只记日志，保持 dirty 待下轮重试。
func (a *AutoSaver) Flush(ctx context.Context) {
	for _, snap := range a.co.dirtySnapshots() {
		if err := a.saver.SaveSnapshot(ctx, snap.DocumentID, snap.Version, snap.Content); err != nil {
			a.log.Warn("auto-save failed",
				zap.String("documentId", snap.DocumentID),
				zap.Uint64("version", snap.Version),
				zap.Error(err))
			continue
		}
		a.co.markSaved(snap.DocumentID, snap.Version)
		a.log.Debug("auto-save flushed",
			zap.String("documentId", snap.DocumentID),
			zap.Uint64("version", snap.Version))
	}
}
