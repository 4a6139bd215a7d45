package server

import "errors"

// ErrArenaFull 第三名玩家尝试加入已满的竞技场
var ErrArenaFull = errors.New("arena is full")

// AssignRole 为加入者分配角色：
// 空竞技场 → player1；已有一人 → 剩下的那个角色；已满 → ErrArenaFull。
// 已在竞技场中的连接保持原角色。
func AssignRole(a *Arena, id PlayerID) (Role, error) {
	if p := a.Player(id); p != nil {
		return p.Role, nil
	}
	if a.Full() {
		return RoleNone, ErrArenaFull
	}
	if a.HasRole(RolePlayer1) {
		return RolePlayer2, nil
	}
	return RolePlayer1, nil
}
