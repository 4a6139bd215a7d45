// Package client 实现竞技场客户端的同步核心：连接与事件分发、
// 本地障碍物副本、固定频率的位置上报，以及渲染端需要实现的接口。
package client

import "cubearena/protocol"

// OpponentSnapshot 对手的一次位置快照，渲染端应平滑插值而不是瞬移
type OpponentSnapshot struct {
	PlayerID  string
	Role      string
	Position  protocol.Vec3
	IsJumping bool
	VelocityY float64
	Timestamp int64
}

// Renderer 渲染端契约。所有方法都在 Session 的读协程中调用，
// 实现需要自行与绘制循环同步。
type Renderer interface {
	ApplyRole(protocol.PlayerRole)
	ApplyLobby(protocol.LobbyUpdate)
	ApplyPlayerLeft(protocol.PlayerInfo)
	ApplyOpponentSnapshot(OpponentSnapshot)
	// replace 为 true 时 obs 是完整集合（syncObstacles），否则为增量
	ApplyObstacleSnapshot(obs []protocol.Obstacle, replace bool)
	RemoveObstacle(id string)
	ApplyGameState(protocol.GameState)
	ApplyPlayerHit(protocol.PlayerHit)
	// 本地对局结果确定（lose / win / draw）时调用，score 为最终得分
	ApplyGameOver(result string, score int)
	ApplyReset()
	ApplyLeaderboard([]protocol.LeaderboardEntry)
	ApplyError(protocol.Error)
}

// Intent 一帧内的控制意图
type Intent struct {
	Forward  bool
	Backward bool
	Left     bool
	Right    bool
	Jump     bool
}

// InputSource 输入源：Next 返回自上次调用以来的控制意图
type InputSource interface {
	Next() Intent
}

// AvatarState 本地玩家的可上报状态
type AvatarState struct {
	Position  protocol.Vec3
	IsJumping bool
	VelocityY float64
}

// StateSource 位置上报循环读取本地状态
type StateSource interface {
	State() AvatarState
}

// NopRenderer 忽略全部事件，可嵌入只关心部分事件的实现
type NopRenderer struct{}

func (NopRenderer) ApplyRole(protocol.PlayerRole)                   {}
func (NopRenderer) ApplyLobby(protocol.LobbyUpdate)                 {}
func (NopRenderer) ApplyPlayerLeft(protocol.PlayerInfo)             {}
func (NopRenderer) ApplyOpponentSnapshot(OpponentSnapshot)          {}
func (NopRenderer) ApplyObstacleSnapshot([]protocol.Obstacle, bool) {}
func (NopRenderer) RemoveObstacle(string)                           {}
func (NopRenderer) ApplyGameState(protocol.GameState)               {}
func (NopRenderer) ApplyPlayerHit(protocol.PlayerHit)               {}
func (NopRenderer) ApplyGameOver(string, int)                       {}
func (NopRenderer) ApplyReset()                                     {}
func (NopRenderer) ApplyLeaderboard([]protocol.LeaderboardEntry)    {}
func (NopRenderer) ApplyError(protocol.Error)                       {}
