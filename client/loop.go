package client

import (
	"context"
	"time"

	"cubearena/protocol"
)

// Frame 一帧模拟后的本地视图
type Frame struct {
	Avatar    AvatarState
	Obstacles []protocol.Obstacle
	Score     int
	Level     int
	Active    bool
}

// StepFrame 推进一帧：应用输入、推进障碍物副本、检测碰撞。
// 撞上障碍物时上报碰撞和本局得分。
func StepFrame(s *Session, av *Avatar, in Intent, now time.Time) (Frame, error) {
	active := s.GameActive()
	if active {
		av.Step(in)
	}
	level, mul := s.Difficulty()
	s.replica.Advance(mul)

	if active {
		if id, hit := s.replica.Collides(av.Box()); hit {
			score := s.Score(now)
			if err := s.ReportCollision(id); err != nil {
				return Frame{}, err
			}
			if _, err := s.ReportGameOver(score); err != nil {
				return Frame{}, err
			}
		}
	}
	return Frame{
		Avatar:    av.State(),
		Obstacles: s.replica.Snapshot(),
		Score:     s.Score(now),
		Level:     level,
		Active:    s.GameActive(),
	}, nil
}

// RunFrameLoop 以 FrameHz 推进本地模拟，每帧回调 draw
func RunFrameLoop(ctx context.Context, s *Session, av *Avatar, in InputSource, draw func(Frame)) error {
	ticker := time.NewTicker(time.Second / protocol.FrameHz)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			f, err := StepFrame(s, av, in.Next(), now)
			if err != nil {
				return err
			}
			draw(f)
		}
	}
}
