package client

import (
	"math"
	"sort"
	"sync"

	"cubearena/protocol"
)

// Box 轴对齐包围盒，Size 为边长
type Box struct {
	Center protocol.Vec3
	Size   float64
}

// ObstacleReplica 本地障碍物副本：服务端只下发生成参数，下落与旋转在本地逐帧推进
type ObstacleReplica struct {
	mu    sync.Mutex
	items map[string]*protocol.Obstacle
}

func NewObstacleReplica() *ObstacleReplica {
	return &ObstacleReplica{items: make(map[string]*protocol.Obstacle)}
}

// Spawn 增量加入一个障碍物；同 id 覆盖
func (r *ObstacleReplica) Spawn(o protocol.Obstacle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[o.ID] = &o
}

// Replace 整体替换为 obs（syncObstacles）
func (r *ObstacleReplica) Replace(obs []protocol.Obstacle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = make(map[string]*protocol.Obstacle, len(obs))
	for i := range obs {
		o := obs[i]
		r.items[o.ID] = &o
	}
}

// Remove 幂等删除，返回删除前是否存在
func (r *ObstacleReplica) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return false
	}
	delete(r.items, id)
	return true
}

func (r *ObstacleReplica) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = make(map[string]*protocol.Obstacle)
}

func (r *ObstacleReplica) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// Advance 推进一帧：按 baseSpeed*speedMultiplier 下落并旋转，
// 落到回收线以下的障碍物被移除，返回被移除的 id
func (r *ObstacleReplica) Advance(speedMultiplier float64) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var culled []string
	for id, o := range r.items {
		o.Position.Y -= o.BaseSpeed * speedMultiplier
		o.Rotation.X += o.RotationSpeed.X
		o.Rotation.Y += o.RotationSpeed.Y
		o.Rotation.Z += o.RotationSpeed.Z
		if o.Position.Y < protocol.FloorY {
			delete(r.items, id)
			culled = append(culled, id)
		}
	}
	sort.Strings(culled)
	return culled
}

// Collides 返回与 box 相交的障碍物 id（多个时取 id 最小者）
func (r *ObstacleReplica) Collides(box Box) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reach := (box.Size + protocol.ObstacleSize) / 2
	hit := ""
	for id, o := range r.items {
		if math.Abs(box.Center.X-o.Position.X) < reach &&
			math.Abs(box.Center.Y-o.Position.Y) < reach &&
			math.Abs(box.Center.Z-o.Position.Z) < reach {
			if hit == "" || id < hit {
				hit = id
			}
		}
	}
	return hit, hit != ""
}

// Snapshot 按 id 排序的副本拷贝，供绘制使用
func (r *ObstacleReplica) Snapshot() []protocol.Obstacle {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]protocol.Obstacle, 0, len(r.items))
	for _, o := range r.items {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
