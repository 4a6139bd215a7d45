package server

import (
	"sync/atomic"
)

// RelayMetrics 记录中继运行期的关键指标（用于监控与调试）
type RelayMetrics struct {
	FramesIn            int64 // 收到的客户端帧
	Relayed             int64 // 转发出去的消息数（按接收者计）
	DroppedUnauthorized int64 // player2 创作障碍物被丢弃
	DroppedMalformed    int64 // 无法解析或字段缺失
	DroppedCrossArena   int64 // 未加入竞技场或 arena 字段不符
	JoinsRejected       int64 // 竞技场已满
	ObstaclesSpawned    int64
	Collisions          int64 // 碰撞上报次数（含重复）
	DuplicateCollisions int64 // 重复上报（障碍物已不存在）
	QueueFullDiscarded  int64 // 发送队列满被丢弃
	HandlerPanics       int64
}

func (m *RelayMetrics) IncFramesIn()            { atomic.AddInt64(&m.FramesIn, 1) }
func (m *RelayMetrics) AddRelayed(n int)        { atomic.AddInt64(&m.Relayed, int64(n)) }
func (m *RelayMetrics) IncUnauthorized()        { atomic.AddInt64(&m.DroppedUnauthorized, 1) }
func (m *RelayMetrics) IncMalformed()           { atomic.AddInt64(&m.DroppedMalformed, 1) }
func (m *RelayMetrics) IncCrossArena()          { atomic.AddInt64(&m.DroppedCrossArena, 1) }
func (m *RelayMetrics) IncJoinsRejected()       { atomic.AddInt64(&m.JoinsRejected, 1) }
func (m *RelayMetrics) IncSpawned()             { atomic.AddInt64(&m.ObstaclesSpawned, 1) }
func (m *RelayMetrics) IncCollisions()          { atomic.AddInt64(&m.Collisions, 1) }
func (m *RelayMetrics) IncDuplicateCollisions() { atomic.AddInt64(&m.DuplicateCollisions, 1) }
func (m *RelayMetrics) IncQueueFull()           { atomic.AddInt64(&m.QueueFullDiscarded, 1) }
func (m *RelayMetrics) IncPanics()              { atomic.AddInt64(&m.HandlerPanics, 1) }

// Snapshot 返回只读副本，便于 HTTP 输出
func (m *RelayMetrics) Snapshot() map[string]any {
	return map[string]any{
		"frames_in":            atomic.LoadInt64(&m.FramesIn),
		"relayed":              atomic.LoadInt64(&m.Relayed),
		"dropped_unauthorized": atomic.LoadInt64(&m.DroppedUnauthorized),
		"dropped_malformed":    atomic.LoadInt64(&m.DroppedMalformed),
		"dropped_cross_arena":  atomic.LoadInt64(&m.DroppedCrossArena),
		"joins_rejected":       atomic.LoadInt64(&m.JoinsRejected),
		"obstacles_spawned":    atomic.LoadInt64(&m.ObstaclesSpawned),
		"collisions":           atomic.LoadInt64(&m.Collisions),
		"duplicate_collisions": atomic.LoadInt64(&m.DuplicateCollisions),
		"queue_full_discarded": atomic.LoadInt64(&m.QueueFullDiscarded),
		"handler_panics":       atomic.LoadInt64(&m.HandlerPanics),
	}
}
