package relay

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"relay-service/backend/internal/cache"
)

// Broadcaster 房间内分组广播原语，由 ws.Hub 实现。
// Relay 只负责"转发 + 快照"，不关心连接管理。
type Broadcaster interface {
	BroadcastUpdate(pageID string, payload []byte, exceptConnID string)
	BroadcastAwareness(pageID string, payload []byte, exceptConnID string)
}

// SnapshotArchive 快照的 MySQL 落盘轨迹（补充 Redis 工作集的持久尾巴）。
// 允许为 nil：纯内存/测试环境不落库。
type SnapshotArchive interface {
	SaveDocumentSnapshot(ctx context.Context, pageID string, seq uint64, data []byte) error
	// LastSeq 返回该页面已归档的最大序号；还没有归档行返回 0
	LastSeq(ctx context.Context, pageID string) (uint64, error)
}

// Relay 在同页面协作者之间搬运 CRDT 更新与 awareness 字节，
// 并衔接在线编辑与持久快照。负载对 Relay 完全不透明：
// 不解析、不合并、不校验，合并语义在客户端的 CRDT 算法里。
type Relay struct {
	hub       Broadcaster
	snapshots cache.SnapshotCache
	archive   SnapshotArchive
	sem       *SemaphoreControl

	// 合并同一页面并发的冷读，避免惊群打到 Redis
	sf singleflight.Group

	mu sync.Mutex
	// 每个页面的快照落盘序号（单调递增，用于归档行去重）。
	// 进程启动后首次发号前先从归档表里读最大序号做种，
	// 不然重启后从 1 重新发号会一路撞上历史行被去重吞掉。
	seq map[string]uint64
}

func New(hub Broadcaster, snapshots cache.SnapshotCache, archive SnapshotArchive) *Relay {
	return &Relay{
		hub:       hub,
		snapshots: snapshots,
		archive:   archive,
		sem:       NewSemaphoreControl(),
		seq:       make(map[string]uint64),
	}
}

// RelayUpdate 把 CRDT 更新原样广播给页面里除发送方以外的所有连接
func (r *Relay) RelayUpdate(pageID string, payload []byte, fromConnID string) {
	r.hub.BroadcastUpdate(pageID, payload, fromConnID)
}

// RelayAwareness 同样的 fan-out 契约，独立的消息类型（瞬态，不持久化）
func (r *Relay) RelayAwareness(pageID string, payload []byte, fromConnID string) {
	r.hub.BroadcastAwareness(pageID, payload, fromConnID)
}

// LoadInitialState 加入页面时读取最新快照。
// 还没有快照返回 nil；读失败按"没有快照"处理（fail open），
// 绝不因为 Redis 抖动挡住 join。
func (r *Relay) LoadInitialState(ctx context.Context, pageID string) []byte {
	v, err, _ := r.sf.Do(pageID, func() (interface{}, error) {
		return r.snapshots.Get(ctx, pageID)
	})
	if err != nil {
		log.Printf("load snapshot error (page=%s), fail open to empty: %v", pageID, err)
		return nil
	}
	data, _ := v.([]byte)
	return data
}

// SaveSnapshot 把当前完整状态写入快照存储（30 天滑动 TTL）。
// 客户端周期性调用（如静默 30s）或优雅断开时调用。
// 写失败原样返回给调用方，这里不重试：要不要在下一个定时周期重试由客户端决定。
func (r *Relay) SaveSnapshot(ctx context.Context, pageID string, data []byte) error {
	acquireCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := r.sem.Acquire(acquireCtx); err != nil {
		return err
	}
	defer r.sem.Release()

	if err := r.snapshots.Set(ctx, pageID, data); err != nil {
		return err
	}

	// MySQL 归档是尽力而为的持久尾巴，失败只打日志，不影响在线链路
	if r.archive != nil {
		if seq, ok := r.nextSeq(ctx, pageID); ok {
			if err := r.archive.SaveDocumentSnapshot(ctx, pageID, seq, data); err != nil {
				log.Printf("archive snapshot error (page=%s seq=%d): %v", pageID, seq, err)
			}
		}
	}
	return nil
}

// nextSeq 分配该页面下一个归档序号。
// 本进程首次给该页面发号时先查归档表里已有的最大序号做种；
// 种子查不到时跳过这一次归档（返回 false），计数器留到下次保存再做种。
func (r *Relay) nextSeq(ctx context.Context, pageID string) (uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, seeded := r.seq[pageID]; !seeded {
		last, err := r.archive.LastSeq(ctx, pageID)
		if err != nil {
			log.Printf("seed archive seq error (page=%s): %v", pageID, err)
			return 0, false
		}
		r.seq[pageID] = last
	}
	r.seq[pageID]++
	return r.seq[pageID], true
}
