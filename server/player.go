package server

import (
	"cubearena/protocol"

	"github.com/google/uuid"
)

// PlayerID 连接级唯一标识，连接建立时生成
type PlayerID string

// NewPlayerID 生成新的连接标识
func NewPlayerID() PlayerID { return PlayerID(uuid.NewString()) }

// Role 玩家在竞技场中的角色：player1 为权威方，player2 为跟随方
type Role string

const (
	RoleNone    Role = ""
	RolePlayer1 Role = protocol.RolePlayer1
	RolePlayer2 Role = protocol.RolePlayer2
)

// IsAuthority 是否允许创作障碍物状态
func (r Role) IsAuthority() bool { return r == RolePlayer1 }

// Player 竞技场成员；Role 在加入时分配，离开前不变
type Player struct {
	ID    PlayerID
	Name  string
	Role  Role
	Arena string
}

// Info 对外广播的玩家信息
func (p *Player) Info() protocol.PlayerInfo {
	return protocol.PlayerInfo{ID: string(p.ID), Name: p.Name, Role: string(p.Role)}
}
