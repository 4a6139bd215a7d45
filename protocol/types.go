package protocol

import "math"

// Vec3 三维向量（位置 / 旋转 / 角速度）
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// HSL 颜色
type HSL struct {
	H float64 `json:"h"`
	S float64 `json:"s"`
	L float64 `json:"l"`
}

// ShapeType 障碍物形状：立方体 / 四面体 / 八面体 / 十二面体
type ShapeType int

const (
	ShapeCube ShapeType = iota
	ShapeTetrahedron
	ShapeOctahedron
	ShapeDodecahedron
	shapeCount
)

// Valid 是否为已知形状
func (s ShapeType) Valid() bool { return s >= 0 && s < shapeCount }

// Obstacle 权威生成的障碍物参数；下落模拟由各客户端本地推进
type Obstacle struct {
	ID            string    `json:"id"`
	Position      Vec3      `json:"position"`
	Rotation      Vec3      `json:"rotation"`
	ShapeType     ShapeType `json:"shapeType"`
	BaseSpeed     float64   `json:"baseSpeed"`
	RotationSpeed Vec3      `json:"rotationSpeed"`
	Color         HSL       `json:"color"`
}

// Finite 所有数值字段都是有限数
func (o Obstacle) Finite() bool {
	return Finite(
		o.Position.X, o.Position.Y, o.Position.Z,
		o.Rotation.X, o.Rotation.Y, o.Rotation.Z,
		o.RotationSpeed.X, o.RotationSpeed.Y, o.RotationSpeed.Z,
		o.BaseSpeed, o.Color.H, o.Color.S, o.Color.L,
	)
}

// PlayerInfo 对外可见的玩家信息
type PlayerInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// ---- 客户端 → 服务端 ----

type JoinArena struct {
	Arena string `json:"arena"`
	Name  string `json:"name"`
}

// Move 位置快照；Role/ID 由服务端在转发前填充
type Move struct {
	X         *float64 `json:"x"`
	Y         *float64 `json:"y"`
	Z         *float64 `json:"z"`
	IsJumping bool     `json:"isJumping"`
	VelocityY float64  `json:"velocityY"`
	Role      string   `json:"role,omitempty"`
	PlayerID  string   `json:"playerId,omitempty"`
	Arena     string   `json:"arena,omitempty"`
	Timestamp int64    `json:"timestamp,omitempty"`
}

// HasPosition 三个坐标齐全且都是有限数
func (m Move) HasPosition() bool {
	return m.X != nil && m.Y != nil && m.Z != nil && Finite(*m.X, *m.Y, *m.Z, m.VelocityY)
}

// Finite 全部为有限数；msgpack 能携带 NaN/Inf，JSON 无法编码它们
func Finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

type SyncObstacles struct {
	Obstacles []Obstacle `json:"obstacles"`
	Arena     string     `json:"arena,omitempty"`
}

type ObstacleCreated struct {
	Obstacle
	Arena string `json:"arena,omitempty"`
}

type ObstacleCollision struct {
	ObstacleID string `json:"obstacleId"`
	PlayerID   string `json:"playerId,omitempty"`
	PlayerRole string `json:"playerRole,omitempty"`
	Arena      string `json:"arena,omitempty"`
}

type GameState struct {
	GameStarted bool   `json:"gameStarted"`
	Arena       string `json:"arena,omitempty"`
}

// PlayerHit 本局结束时各方上报的最终得分。Result 为空等同 lose；
// win 只提交幸存者得分，不再广播
type PlayerHit struct {
	Player string `json:"player,omitempty"` // 上报者角色
	Name   string `json:"name,omitempty"`
	Score  int    `json:"score"`
	Result string `json:"result,omitempty"`
	Arena  string `json:"arena,omitempty"`
}

// ValidResult 空值与三种结果之一
func ValidResult(r string) bool {
	switch r {
	case "", ResultLose, ResultWin, ResultDraw:
		return true
	}
	return false
}

type Reset struct {
	Arena string `json:"arena,omitempty"`
}

// ---- 服务端 → 客户端 ----

type PlayerRole struct {
	Role      string `json:"role"`
	IsPlayer1 bool   `json:"isPlayer1"`
	PlayerID  string `json:"playerId"`
	Arena     string `json:"arena"`
}

type LobbyUpdate struct {
	Arena   string       `json:"arena"`
	Players []PlayerInfo `json:"players"`
}

// SpawnObstacle 服务端定时生成的障碍物，附带当前难度
type SpawnObstacle struct {
	Obstacle
	Level           int     `json:"level"`
	SpeedMultiplier float64 `json:"speedMultiplier"`
}

type GameReset struct {
	Arena string `json:"arena"`
}

type LeaderboardEntry struct {
	Name      string `json:"name"`
	Score     int    `json:"score"`
	HighScore int    `json:"highScore"`
	Games     int    `json:"games"`
}

type Error struct {
	Code    string `json:"code"`
	Arena   string `json:"arena,omitempty"`
	Message string `json:"message,omitempty"`
}
