package client

import "cubearena/protocol"

// DefaultSmoothing 每帧向目标靠近的比例
const DefaultSmoothing = 0.15

// Smoother 对手位置的指数插值：网络约 30 次/秒，渲染 60 帧/秒
type Smoother struct {
	factor  float64
	current protocol.Vec3
	target  protocol.Vec3
	primed  bool
}

// NewSmoother factor 取 (0,1]，越界时使用 DefaultSmoothing
func NewSmoother(factor float64) *Smoother {
	if factor <= 0 || factor > 1 {
		factor = DefaultSmoothing
	}
	return &Smoother{factor: factor}
}

// SetTarget 设置新的目标；第一个快照直接就位
func (s *Smoother) SetTarget(p protocol.Vec3) {
	s.target = p
	if !s.primed {
		s.current = p
		s.primed = true
	}
}

// Step 推进一帧并返回当前位置
func (s *Smoother) Step() protocol.Vec3 {
	s.current.X += (s.target.X - s.current.X) * s.factor
	s.current.Y += (s.target.Y - s.current.Y) * s.factor
	s.current.Z += (s.target.Z - s.current.Z) * s.factor
	return s.current
}

func (s *Smoother) Current() protocol.Vec3 { return s.current }

// Primed 是否收到过快照
func (s *Smoother) Primed() bool { return s.primed }
