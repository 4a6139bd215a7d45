package server

import (
	"sort"
	"time"

	"cubearena/protocol"
)

// trackedObstacle 服务端记录的存活障碍物；expiresAt 之后已落到所有客户端的地板以下
type trackedObstacle struct {
	protocol.Obstacle
	spawnedAt time.Time
	speedMul  float64
	expiresAt time.Time
}

// at 按客户端帧率推算 now 时刻的位置与旋转
func (t *trackedObstacle) at(now time.Time) protocol.Obstacle {
	o := t.Obstacle
	frames := now.Sub(t.spawnedAt).Seconds() * protocol.FrameHz
	if frames <= 0 {
		return o
	}
	o.Position.Y -= o.BaseSpeed * t.speedMul * frames
	o.Rotation.X += o.RotationSpeed.X * frames
	o.Rotation.Y += o.RotationSpeed.Y * frames
	o.Rotation.Z += o.RotationSpeed.Z * frames
	return o
}

// Arena 竞技场：最多两名玩家共享一组障碍物。
// 只在 Hub 的事件循环中访问，不加锁。
type Arena struct {
	Name string

	players   []*Player // 按加入顺序
	obstacles map[string]*trackedObstacle

	GameInProgress bool
	SpawningActive bool
	startedAt      time.Time // 本局开始时间，用于难度计算

	spawner *spawner
}

// NewArena 创建空竞技场
func NewArena(name string) *Arena {
	return &Arena{
		Name:      name,
		players:   make([]*Player, 0, protocol.MaxArenaPlayers),
		obstacles: make(map[string]*trackedObstacle),
	}
}

func (a *Arena) Len() int    { return len(a.players) }
func (a *Arena) Empty() bool { return len(a.players) == 0 }
func (a *Arena) Full() bool  { return len(a.players) >= protocol.MaxArenaPlayers }

// Player 按 id 查找成员
func (a *Arena) Player(id PlayerID) *Player {
	for _, p := range a.players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// HasRole 是否已有成员持有该角色
func (a *Arena) HasRole(r Role) bool {
	for _, p := range a.players {
		if p.Role == r {
			return true
		}
	}
	return false
}

// Members 返回成员切片的副本
func (a *Arena) Members() []*Player {
	out := make([]*Player, len(a.players))
	copy(out, a.players)
	return out
}

// Infos 大厅广播用的成员列表
func (a *Arena) Infos() []protocol.PlayerInfo {
	out := make([]protocol.PlayerInfo, 0, len(a.players))
	for _, p := range a.players {
		out = append(out, p.Info())
	}
	return out
}

// add 追加成员，调用方需先通过 AssignRole
func (a *Arena) add(p *Player) {
	p.Arena = a.Name
	a.players = append(a.players, p)
}

// remove 移除成员；不存在时返回 nil
func (a *Arena) remove(id PlayerID) *Player {
	for i, p := range a.players {
		if p.ID == id {
			a.players = append(a.players[:i], a.players[i+1:]...)
			return p
		}
	}
	return nil
}

// AddObstacle 记录 spawnedAt 时刻生成的障碍物；同 id 覆盖
func (a *Arena) AddObstacle(o protocol.Obstacle, spawnedAt time.Time, speedMul float64) {
	a.obstacles[o.ID] = &trackedObstacle{
		Obstacle:  o,
		spawnedAt: spawnedAt,
		speedMul:  speedMul,
		expiresAt: spawnedAt.Add(FallDuration(o, speedMul)),
	}
}

// RemoveObstacle 幂等移除，返回此前是否存在
func (a *Arena) RemoveObstacle(id string) bool {
	if _, ok := a.obstacles[id]; !ok {
		return false
	}
	delete(a.obstacles, id)
	return true
}

// HasObstacle 是否存活
func (a *Arena) HasObstacle(id string) bool {
	_, ok := a.obstacles[id]
	return ok
}

// ReplaceObstacles 整体替换（player1 的全量同步）
func (a *Arena) ReplaceObstacles(obs []protocol.Obstacle, now time.Time, speedMul float64) {
	a.obstacles = make(map[string]*trackedObstacle, len(obs))
	for _, o := range obs {
		a.AddObstacle(o, now, speedMul)
	}
}

// Obstacles 推算到 now 的存活障碍物，按 id 排序；用于给中途加入者的全量同步
func (a *Arena) Obstacles(now time.Time) []protocol.Obstacle {
	out := make([]protocol.Obstacle, 0, len(a.obstacles))
	for _, t := range a.obstacles {
		if now.After(t.expiresAt) {
			continue
		}
		out = append(out, t.at(now))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ClearObstacles 清空障碍物
func (a *Arena) ClearObstacles() {
	a.obstacles = make(map[string]*trackedObstacle)
}

// PruneExpired 回收已落地的障碍物，返回回收数量
func (a *Arena) PruneExpired(now time.Time) int {
	n := 0
	for id, o := range a.obstacles {
		if now.After(o.expiresAt) {
			delete(a.obstacles, id)
			n++
		}
	}
	return n
}

func (a *Arena) ObstacleCount() int { return len(a.obstacles) }

// Info 管理接口使用的只读概要
func (a *Arena) Info() ArenaInfo {
	return ArenaInfo{
		Name:           a.Name,
		Players:        a.Infos(),
		Obstacles:      len(a.obstacles),
		GameInProgress: a.GameInProgress,
		SpawningActive: a.SpawningActive,
	}
}

// ArenaInfo 供 /admin/arenas 输出
type ArenaInfo struct {
	Name           string                `json:"name"`
	Players        []protocol.PlayerInfo `json:"players"`
	Obstacles      int                   `json:"obstacles"`
	GameInProgress bool                  `json:"gameInProgress"`
	SpawningActive bool                  `json:"spawningActive"`
}
