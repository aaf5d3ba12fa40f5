package cache

import "fmt"

// 键语义：
// - snapshotKey(pageID): 页面的 CRDT 快照字节（String，带 30 天滑动过期）
//
// 注意：存的是"当前合并状态的快照"，不是逐条编辑日志。

const keySnapshotFmt = "crdt:snapshot:%s"

func snapshotKey(pageID string) string { return fmt.Sprintf(keySnapshotFmt, pageID) }
