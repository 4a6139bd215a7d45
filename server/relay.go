package server

import (
	"errors"
	"strings"
	"time"

	"cubearena/protocol"
)

const maxNameLen = 32

// onFrame 解析信封并分发到具体事件处理；坏帧只记录并丢弃，不断开连接
func (h *Hub) onFrame(f Frame) {
	cl, ok := h.store.clients[f.ID]
	if !ok {
		return
	}
	h.metrics.IncFramesIn()
	env, err := cl.codec.DecodeEnvelope(f.Data)
	if err != nil {
		h.metrics.IncMalformed()
		h.log.Debugf("drop malformed frame from %s: %v", cl.id, err)
		return
	}

	switch env.Type {
	case protocol.EvJoinArena:
		h.onJoinArena(cl, env)
	case protocol.EvMove:
		h.onMove(cl, env)
	case protocol.EvSyncObstacles:
		h.onSyncObstacles(cl, env)
	case protocol.EvObstacleCreated:
		h.onObstacleCreated(cl, env)
	case protocol.EvObstacleCollision:
		h.onObstacleCollision(cl, env)
	case protocol.EvGameState:
		h.onGameState(cl, env)
	case protocol.EvPlayerHit:
		h.onPlayerHit(cl, env)
	case protocol.EvReset:
		h.onReset(cl, env)
	default:
		h.metrics.IncMalformed()
		h.log.Debugf("drop unknown event %q from %s", env.Type, cl.id)
	}
}

// decode 解码负载，失败时记录并返回 false
func decode[T any](h *Hub, cl *client, env protocol.Envelope) (T, bool) {
	v, err := protocol.DecodePayload[T](cl.codec, env)
	if err != nil {
		h.metrics.IncMalformed()
		h.log.Debugf("drop %s from %s: %v", env.Type, cl.id, err)
		return v, false
	}
	return v, true
}

// arenaOf 发送者所在的竞技场及其成员记录。
// 未加入竞技场，或 claimed 指向其他竞技场时返回 nil（不跨竞技场转发）。
func (h *Hub) arenaOf(cl *client, claimed, event string) (*Arena, *Player) {
	if cl.arena == "" || (claimed != "" && claimed != cl.arena) {
		h.metrics.IncCrossArena()
		h.log.Debugf("drop %s from %s: arena=%q claimed=%q", event, cl.id, cl.arena, claimed)
		return nil, nil
	}
	a := h.store.arenas[cl.arena]
	if a == nil {
		h.metrics.IncCrossArena()
		return nil, nil
	}
	p := a.Player(cl.id)
	if p == nil {
		h.metrics.IncCrossArena()
		return nil, nil
	}
	return a, p
}

// ---- 加入 / 离开 ----

func (h *Hub) onJoinArena(cl *client, env protocol.Envelope) {
	req, ok := decode[protocol.JoinArena](h, cl, env)
	if !ok {
		h.sendTo(cl, protocol.EvError, protocol.Error{Code: protocol.ErrCodeBadJoin, Message: "invalid join-arena payload"})
		return
	}
	name := strings.TrimSpace(req.Arena)
	if name == "" {
		name = protocol.DefaultArenaName
	}
	display := strings.TrimSpace(req.Name)
	if display == "" {
		display = "Player"
	}
	if r := []rune(display); len(r) > maxNameLen {
		display = string(r[:maxNameLen])
	}

	// 重复加入同一竞技场：只重发角色
	if a := h.store.Arena(name); a != nil && cl.arena == name {
		if p := a.Player(cl.id); p != nil {
			h.sendRole(cl, p)
			return
		}
	}

	if target := h.store.Arena(name); target != nil {
		if _, err := AssignRole(target, cl.id); errors.Is(err, ErrArenaFull) {
			h.metrics.IncJoinsRejected()
			h.log.Infof("join rejected: arena=%s id=%s full", name, cl.id)
			h.sendTo(cl, protocol.EvError, protocol.Error{
				Code:    protocol.ErrCodeArenaFull,
				Arena:   name,
				Message: "arena already has two players",
			})
			return
		}
	}

	// 同一连接只属于一个竞技场：切换前先离开原竞技场
	if cl.arena != "" {
		h.leaveArena(cl)
	}

	a := h.store.getOrCreateArena(name)
	role, err := AssignRole(a, cl.id)
	if err != nil {
		h.log.Errorf("assign role arena=%s id=%s: %v", name, cl.id, err)
		return
	}
	p := &Player{ID: cl.id, Name: display, Role: role}
	a.add(p)
	cl.arena = a.Name

	h.sendRole(cl, p)
	h.relay(a, cl.id, protocol.EvPlayerJoined, p.Info())
	h.broadcastArena(a, protocol.EvLobbyUpdate, protocol.LobbyUpdate{Arena: a.Name, Players: a.Infos()})
	if a.GameInProgress {
		// 中途加入：补发对局状态和当前障碍物
		h.sendTo(cl, protocol.EvGameState, protocol.GameState{GameStarted: true, Arena: a.Name})
		h.sendTo(cl, protocol.EvSyncObstacles, protocol.SyncObstacles{Obstacles: a.Obstacles(h.now()), Arena: a.Name})
	}
	h.log.Infof("player joined: arena=%s id=%s name=%s role=%s players=%d", a.Name, p.ID, p.Name, p.Role, a.Len())
}

func (h *Hub) sendRole(cl *client, p *Player) {
	h.sendTo(cl, protocol.EvPlayerRole, protocol.PlayerRole{
		Role:      string(p.Role),
		IsPlayer1: p.Role == RolePlayer1,
		PlayerID:  string(p.ID),
		Arena:     p.Arena,
	})
}

// leaveArena 将连接移出其竞技场：
// 竞技场变空则取消定时器并删除；否则通知剩余玩家并结束进行中的对局
func (h *Hub) leaveArena(cl *client) {
	if cl.arena == "" {
		return
	}
	a := h.store.arenas[cl.arena]
	cl.arena = ""
	if a == nil {
		return
	}
	p := a.remove(cl.id)
	if p == nil {
		return
	}
	h.log.Infof("player left: arena=%s id=%s role=%s remaining=%d", a.Name, p.ID, p.Role, a.Len())

	if a.Empty() {
		h.stopSpawning(a)
		h.store.dropArena(a.Name)
		h.log.Infof("arena removed: %s", a.Name)
		return
	}

	h.broadcastArena(a, protocol.EvPlayerLeft, p.Info())
	h.broadcastArena(a, protocol.EvLobbyUpdate, protocol.LobbyUpdate{Arena: a.Name, Players: a.Infos()})
	if a.GameInProgress || a.SpawningActive {
		a.GameInProgress = false
		h.stopSpawning(a)
		a.ClearObstacles()
		h.broadcastArena(a, protocol.EvGameState, protocol.GameState{GameStarted: false, Arena: a.Name})
	}
}

// ---- 位置 ----

func (h *Hub) onMove(cl *client, env protocol.Envelope) {
	m, ok := decode[protocol.Move](h, cl, env)
	if !ok {
		return
	}
	if !m.HasPosition() {
		h.metrics.IncMalformed()
		h.log.Debugf("drop move from %s: missing or non-finite position", cl.id)
		return
	}
	a, p := h.arenaOf(cl, m.Arena, env.Type)
	if a == nil {
		return
	}
	// 服务端标注角色，接收方据此归属
	m.Role = string(p.Role)
	m.PlayerID = string(p.ID)
	m.Arena = a.Name
	if m.Timestamp == 0 {
		m.Timestamp = h.now().UnixMilli()
	}
	h.relay(a, cl.id, protocol.EvMove, m)
}

// ---- 障碍物 ----

// authorize 只有 player1 可以创作障碍物；player2 的请求静默丢弃
func (h *Hub) authorize(p *Player, event string) bool {
	if p.Role.IsAuthority() {
		return true
	}
	h.metrics.IncUnauthorized()
	h.log.Debugf("drop %s from %s: role %s is not authority", event, p.ID, p.Role)
	return false
}

// speedNow 当前难度下的下落倍率，用于推算客户端创作的障碍物何时落地
func (h *Hub) speedNow(a *Arena, now time.Time) float64 {
	return h.difficulty.SpeedMultiplier(h.levelOf(a, now))
}

func (h *Hub) onSyncObstacles(cl *client, env protocol.Envelope) {
	req, ok := decode[protocol.SyncObstacles](h, cl, env)
	if !ok {
		return
	}
	a, p := h.arenaOf(cl, req.Arena, env.Type)
	if a == nil || !h.authorize(p, env.Type) {
		return
	}
	for _, o := range req.Obstacles {
		if !validObstacle(o) {
			h.metrics.IncMalformed()
			h.log.Debugf("drop %s from %s: invalid obstacle %q", env.Type, cl.id, o.ID)
			return
		}
	}
	if req.Obstacles == nil {
		req.Obstacles = []protocol.Obstacle{}
	}
	now := h.now()
	a.ReplaceObstacles(req.Obstacles, now, h.speedNow(a, now))
	h.relay(a, cl.id, protocol.EvSyncObstacles, protocol.SyncObstacles{Obstacles: req.Obstacles, Arena: a.Name})
}

func (h *Hub) onObstacleCreated(cl *client, env protocol.Envelope) {
	req, ok := decode[protocol.ObstacleCreated](h, cl, env)
	if !ok {
		return
	}
	a, p := h.arenaOf(cl, req.Arena, env.Type)
	if a == nil || !h.authorize(p, env.Type) {
		return
	}
	if !validObstacle(req.Obstacle) {
		h.metrics.IncMalformed()
		h.log.Debugf("drop %s from %s: invalid obstacle", env.Type, cl.id)
		return
	}
	now := h.now()
	a.AddObstacle(req.Obstacle, now, h.speedNow(a, now))
	req.Arena = a.Name
	h.relay(a, cl.id, protocol.EvObstacleCreated, req)
}

// onObstacleCollision 幂等移除并通知其他成员；重复上报不是错误
func (h *Hub) onObstacleCollision(cl *client, env protocol.Envelope) {
	req, ok := decode[protocol.ObstacleCollision](h, cl, env)
	if !ok {
		return
	}
	if req.ObstacleID == "" {
		h.metrics.IncMalformed()
		h.log.Debugf("drop %s from %s: missing obstacleId", env.Type, cl.id)
		return
	}
	a, p := h.arenaOf(cl, req.Arena, env.Type)
	if a == nil {
		return
	}
	h.metrics.IncCollisions()
	if !a.RemoveObstacle(req.ObstacleID) {
		h.metrics.IncDuplicateCollisions()
	}
	req.PlayerID = string(p.ID)
	req.PlayerRole = string(p.Role)
	req.Arena = a.Name
	h.relay(a, cl.id, protocol.EvObstacleCollision, req)
}

// ---- 对局状态 ----

func (h *Hub) onGameState(cl *client, env protocol.Envelope) {
	req, ok := decode[protocol.GameState](h, cl, env)
	if !ok {
		return
	}
	a, _ := h.arenaOf(cl, req.Arena, env.Type)
	if a == nil {
		return
	}
	a.GameInProgress = req.GameStarted
	if req.GameStarted {
		h.startSpawning(a)
	} else {
		h.stopSpawning(a)
	}
	req.Arena = a.Name
	h.relay(a, cl.id, protocol.EvGameState, req)
	h.log.Infof("game state: arena=%s started=%v by=%s", a.Name, req.GameStarted, cl.id)
}

// onPlayerHit 对局结束时的得分上报：记入排行榜并广播。
// 被击中的上报同时结束对局并通知竞技场全部成员
func (h *Hub) onPlayerHit(cl *client, env protocol.Envelope) {
	req, ok := decode[protocol.PlayerHit](h, cl, env)
	if !ok {
		return
	}
	if !protocol.ValidResult(req.Result) {
		h.metrics.IncMalformed()
		h.log.Debugf("drop %s from %s: unknown result %q", env.Type, cl.id, req.Result)
		return
	}
	a, p := h.arenaOf(cl, req.Arena, env.Type)
	if a == nil {
		return
	}
	if req.Result == "" {
		req.Result = protocol.ResultLose
	}
	req.Player = string(p.Role)
	req.Name = p.Name
	req.Arena = a.Name
	// 幸存者的 win 只提交得分；被击中（lose/draw）才结束对局并通知双方
	if req.Result != protocol.ResultWin {
		a.GameInProgress = false
		h.stopSpawning(a)
		h.broadcastArena(a, protocol.EvPlayerHit, req)
	}

	entry, err := h.store.leaderboard.Submit(p.Name, req.Score)
	switch {
	case errors.Is(err, ErrInvalidEntry):
		h.log.Debugf("score not recorded for %s: %v", p.ID, err)
		return
	case err != nil:
		// 内存中的榜单已更新，写盘失败只记录
		h.log.Errorf("persist leaderboard: %v", err)
	}
	h.log.Infof("game over: arena=%s name=%s result=%s score=%d high=%d games=%d",
		a.Name, entry.Name, req.Result, req.Score, entry.HighScore, entry.Games)
	h.broadcastAll(protocol.EvLeaderboard, h.store.leaderboard.Top(0))
}

// onReset 清空障碍物并重新开始生成
func (h *Hub) onReset(cl *client, env protocol.Envelope) {
	var req protocol.Reset
	if len(env.Data) > 0 {
		var ok bool
		if req, ok = decode[protocol.Reset](h, cl, env); !ok {
			return
		}
	}
	a, _ := h.arenaOf(cl, req.Arena, env.Type)
	if a == nil {
		return
	}
	a.ClearObstacles()
	a.GameInProgress = true
	h.stopSpawning(a)
	h.startSpawning(a)
	h.broadcastArena(a, protocol.EvGameReset, protocol.GameReset{Arena: a.Name})
	h.log.Infof("game reset: arena=%s by=%s", a.Name, cl.id)
}
