package client

import (
	"sync"

	"cubearena/protocol"
)

// 本地物理常量（每帧）
const (
	MoveSpeed = 0.1
	Gravity   = 0.005
	JumpForce = 0.15
	Friction  = 0.95
	Boundary  = protocol.ArenaSize/2 - protocol.PlayerSize/2
)

// Avatar 本地玩家的方块：读协程上报位置，帧循环推进物理
type Avatar struct {
	mu      sync.Mutex
	pos     protocol.Vec3
	vel     protocol.Vec3
	jumping bool
}

func NewAvatar(start protocol.Vec3) *Avatar {
	return &Avatar{pos: start}
}

// Step 应用一帧输入与物理：加速、跳跃、重力、摩擦、落地和边界
func (a *Avatar) Step(in Intent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if in.Forward {
		a.vel.Z -= MoveSpeed
	}
	if in.Backward {
		a.vel.Z += MoveSpeed
	}
	if in.Left {
		a.vel.X -= MoveSpeed
	}
	if in.Right {
		a.vel.X += MoveSpeed
	}
	if in.Jump && !a.jumping {
		a.vel.Y = JumpForce
		a.jumping = true
	}

	a.vel.Y -= Gravity
	a.pos.X += a.vel.X
	a.pos.Y += a.vel.Y
	a.pos.Z += a.vel.Z
	a.vel.X *= Friction
	a.vel.Z *= Friction

	if a.pos.Y <= 0 {
		a.pos.Y = 0
		a.vel.Y = 0
		a.jumping = false
	}
	a.pos.X, a.vel.X = clamp(a.pos.X, a.vel.X)
	a.pos.Z, a.vel.Z = clamp(a.pos.Z, a.vel.Z)
}

// clamp 撞到边界时停在边界并清零该轴速度
func clamp(p, v float64) (float64, float64) {
	switch {
	case p < -Boundary:
		return -Boundary, 0
	case p > Boundary:
		return Boundary, 0
	}
	return p, v
}

// Teleport 重置位置与速度（重新开局）
func (a *Avatar) Teleport(p protocol.Vec3) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pos = p
	a.vel = protocol.Vec3{}
	a.jumping = false
}

func (a *Avatar) State() AvatarState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return AvatarState{Position: a.pos, IsJumping: a.jumping, VelocityY: a.vel.Y}
}

func (a *Avatar) Box() Box {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Box{Center: a.pos, Size: protocol.PlayerSize}
}
