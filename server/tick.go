package server

import (
	"sync"
	"sync/atomic"
	"time"

	"cubearena/protocol"
)

// spawner 竞技场的障碍物生成定时器。独立协程只负责计时，
// 到期后向 Hub 投递 spawnTick，生成本身在事件循环中完成。
// 间隔由事件循环按 Hub 时钟计算后写入 interval，协程只读取。
type spawner struct {
	arena    string
	interval atomic.Int64 // time.Duration
	stopCh   chan struct{}
	once     sync.Once
}

func (s *spawner) nextInterval() time.Duration { return time.Duration(s.interval.Load()) }

func (s *spawner) stop() {
	s.once.Do(func() { close(s.stopCh) })
}

func (s *spawner) run(h *Hub) {
	for {
		timer := time.NewTimer(s.nextInterval())
		select {
		case <-s.stopCh:
			timer.Stop()
			return
		case <-h.done:
			timer.Stop()
			return
		case <-timer.C:
		}
		select {
		case h.inbox <- spawnTick{arena: s.arena, spawner: s}:
		case <-s.stopCh:
			return
		case <-h.done:
			return
		}
	}
}

// startSpawning 打开生成开关并启动定时器（已启动则忽略）
func (h *Hub) startSpawning(a *Arena) {
	if a.SpawningActive && a.spawner != nil {
		return
	}
	a.SpawningActive = true
	a.startedAt = h.now()
	s := &spawner{arena: a.Name, stopCh: make(chan struct{})}
	s.interval.Store(int64(h.difficulty.SpawnInterval(h.levelOf(a, a.startedAt))))
	a.spawner = s
	go s.run(h)
	h.log.Debugf("spawner started: arena=%s", a.Name)
}

// stopSpawning 关闭开关并取消定时器，避免竞技场清空后遗留协程
func (h *Hub) stopSpawning(a *Arena) {
	a.SpawningActive = false
	if a.spawner != nil {
		a.spawner.stop()
		a.spawner = nil
		h.log.Debugf("spawner stopped: arena=%s", a.Name)
	}
}

// levelOf 当前对局的难度等级
func (h *Hub) levelOf(a *Arena, now time.Time) int {
	if a.startedAt.IsZero() {
		return 1
	}
	return h.difficulty.Level(now.Sub(a.startedAt))
}

// onSpawnTick 生成一个障碍物并推送给竞技场全部成员。
// 已被取消或替换的定时器投递的 tick 直接忽略。
func (h *Hub) onSpawnTick(t spawnTick) {
	a := h.store.arenas[t.arena]
	if a == nil || !a.SpawningActive || a.spawner != t.spawner {
		return
	}
	now := h.now()
	if n := a.PruneExpired(now); n > 0 {
		h.log.Debugf("pruned %d landed obstacles: arena=%s", n, a.Name)
	}
	level := h.levelOf(a, now)
	t.spawner.interval.Store(int64(h.difficulty.SpawnInterval(level)))
	mul := h.difficulty.SpeedMultiplier(level)
	o := h.factory.Next()
	a.AddObstacle(o, now, mul)
	h.metrics.IncSpawned()
	h.broadcastArena(a, protocol.EvSpawnObstacle, protocol.SpawnObstacle{
		Obstacle:        o,
		Level:           level,
		SpeedMultiplier: mul,
	})
}
