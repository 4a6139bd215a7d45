package server

import (
	"math"
	"math/rand"
	"time"

	"cubearena/protocol"

	"github.com/google/uuid"
)

// fallGrace 估算落地时间之外的余量，覆盖客户端掉帧
const fallGrace = 3 * time.Second

// ObstacleFactory 生成随机障碍物参数；rand 源可注入以便测试复现
type ObstacleFactory struct {
	rng   *rand.Rand
	newID func() string
}

// NewObstacleFactory seed 为 0 时使用当前时间
func NewObstacleFactory(seed int64) *ObstacleFactory {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &ObstacleFactory{
		rng:   rand.New(rand.NewSource(seed)),
		newID: uuid.NewString,
	}
}

// Next 生成一个障碍物：x/z 在场地内均匀分布，高度为出生高度加抖动
func (f *ObstacleFactory) Next() protocol.Obstacle {
	r := f.rng
	span := protocol.ArenaSize - protocol.ObstacleSize
	return protocol.Obstacle{
		ID: f.newID(),
		Position: protocol.Vec3{
			X: (r.Float64() - 0.5) * span,
			Y: protocol.SpawnHeight + r.Float64()*protocol.SpawnJitter,
			Z: (r.Float64() - 0.5) * span,
		},
		Rotation: protocol.Vec3{
			X: r.Float64() * 2 * math.Pi,
			Y: r.Float64() * 2 * math.Pi,
			Z: r.Float64() * 2 * math.Pi,
		},
		ShapeType: protocol.ShapeType(r.Intn(4)),
		BaseSpeed: 0.05 + r.Float64()*0.03,
		RotationSpeed: protocol.Vec3{
			X: (r.Float64() - 0.5) * 0.05,
			Y: (r.Float64() - 0.5) * 0.05,
			Z: (r.Float64() - 0.5) * 0.05,
		},
		Color: protocol.HSL{
			H: r.Float64(),
			S: 0.7 + r.Float64()*0.3,
			L: 0.4 + r.Float64()*0.3,
		},
	}
}

// FallDuration 按客户端帧率估算障碍物从当前高度落到回收线所需时间
func FallDuration(o protocol.Obstacle, speedMultiplier float64) time.Duration {
	perFrame := o.BaseSpeed * speedMultiplier
	if perFrame <= 0 {
		// 无速度的障碍物按最慢速度估算
		perFrame = 0.05
	}
	dist := o.Position.Y - protocol.FloorY
	if dist < 0 {
		dist = 0
	}
	frames := dist / perFrame
	return time.Duration(frames/protocol.FrameHz*float64(time.Second)) + fallGrace
}

// validObstacle 客户端创作的障碍物的最低要求
func validObstacle(o protocol.Obstacle) bool {
	return o.ID != "" && o.ShapeType.Valid() && o.Finite()
}
