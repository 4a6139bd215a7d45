package server

import (
	"context"
	"runtime/debug"
	"time"

	"cubearena/protocol"

	"go.uber.org/zap"
)

// HubOptions Hub 的可选依赖；零值字段使用默认实现
type HubOptions struct {
	Logger     *zap.SugaredLogger
	Metrics    *RelayMetrics
	Difficulty Difficulty
	Seed       int64            // 障碍物随机种子，0 表示按时间
	Now        func() time.Time // 测试注入时钟
	InboxSize  int
}

// Hub 单线程事件循环：所有连接、竞技场与排行榜状态只在 Run 中修改，
// 读泵、生成定时器与管理接口都通过 inbox 投递命令
type Hub struct {
	store      *SessionStore
	inbox      chan any
	done       chan struct{}
	log        *zap.SugaredLogger
	metrics    *RelayMetrics
	factory    *ObstacleFactory
	difficulty Difficulty
	now        func() time.Time
}

// NewHub 创建 Hub，需再调用 Run 启动循环
func NewHub(store *SessionStore, opts HubOptions) *Hub {
	if opts.Logger == nil {
		opts.Logger = Log
	}
	if opts.Metrics == nil {
		opts.Metrics = &RelayMetrics{}
	}
	if opts.Difficulty == (Difficulty{}) {
		opts.Difficulty = NewDifficulty(DefaultConfig())
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.InboxSize <= 0 {
		opts.InboxSize = 1024
	}
	return &Hub{
		store:      store,
		inbox:      make(chan any, opts.InboxSize),
		done:       make(chan struct{}),
		log:        opts.Logger,
		metrics:    opts.Metrics,
		factory:    NewObstacleFactory(opts.Seed),
		difficulty: opts.Difficulty,
		now:        opts.Now,
	}
}

func (h *Hub) Metrics() *RelayMetrics { return h.metrics }

// Run 处理命令直到 ctx 取消；退出时停止所有生成定时器
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for _, a := range h.store.arenas {
				h.stopSpawning(a)
			}
			h.log.Info("hub stopped")
			return
		case cmd := <-h.inbox:
			h.dispatch(cmd)
		}
	}
}

// Post 投递命令；Hub 已停止时直接丢弃。同一发送者的命令保持顺序。
func (h *Hub) Post(cmd any) bool {
	select {
	case h.inbox <- cmd:
		return true
	case <-h.done:
		return false
	}
}

// Done Hub 循环退出后关闭
func (h *Hub) Done() <-chan struct{} { return h.done }

// Arenas 通过事件循环读取竞技场概要
func (h *Hub) Arenas(ctx context.Context) ([]ArenaInfo, error) {
	reply := make(chan []ArenaInfo, 1)
	return query(ctx, h, arenasQuery{reply: reply}, reply)
}

// Leaderboard 通过事件循环读取排行榜
func (h *Hub) Leaderboard(ctx context.Context) ([]LeaderboardEntry, error) {
	reply := make(chan []LeaderboardEntry, 1)
	return query(ctx, h, leaderboardQuery{reply: reply}, reply)
}

// Difficulty 当前难度曲线
func (h *Hub) Difficulty(ctx context.Context) (Difficulty, error) {
	reply := make(chan Difficulty, 1)
	return query(ctx, h, difficultyQuery{reply: reply}, reply)
}

// UpdateDifficulty 在事件循环中合并并校验新的难度曲线；
// 运行中的生成定时器从下一次生成起使用新间隔
func (h *Hub) UpdateDifficulty(ctx context.Context, p DifficultyPatch) (Difficulty, error) {
	reply := make(chan difficultyResult, 1)
	res, err := query(ctx, h, difficultyUpdate{patch: p, reply: reply}, reply)
	if err != nil {
		return Difficulty{}, err
	}
	return res.d, res.err
}

func query[T any](ctx context.Context, h *Hub, cmd any, reply <-chan T) (T, error) {
	var zero T
	select {
	case h.inbox <- cmd:
	case <-h.done:
		return zero, context.Canceled
	case <-ctx.Done():
		return zero, ctx.Err()
	}
	select {
	case v := <-reply:
		return v, nil
	case <-h.done:
		return zero, context.Canceled
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// dispatch 单条命令的处理；任何 panic 只影响当前消息
func (h *Hub) dispatch(cmd any) {
	defer func() {
		if r := recover(); r != nil {
			h.metrics.IncPanics()
			h.log.Errorw("handler panic", "cmd", cmd, "panic", r, "stack", string(debug.Stack()))
		}
	}()

	switch c := cmd.(type) {
	case Connect:
		h.onConnect(c)
	case Disconnect:
		h.onDisconnect(c.ID)
	case Frame:
		h.onFrame(c)
	case spawnTick:
		h.onSpawnTick(c)
	case arenasQuery:
		c.reply <- h.store.ArenaInfos()
	case leaderboardQuery:
		c.reply <- h.store.leaderboard.Top(0)
	case difficultyQuery:
		c.reply <- h.difficulty
	case difficultyUpdate:
		c.reply <- h.onDifficultyUpdate(c.patch)
	default:
		h.log.Warnf("unknown hub command %T", cmd)
	}
}

func (h *Hub) onDifficultyUpdate(p DifficultyPatch) difficultyResult {
	d := p.apply(h.difficulty)
	if err := d.Validate(); err != nil {
		return difficultyResult{d: h.difficulty, err: err}
	}
	h.difficulty = d
	h.log.Infof("difficulty updated: base=%v min=%v levelUpEvery=%v", d.Base, d.Min, d.LevelUpEvery)
	return difficultyResult{d: d}
}

func (h *Hub) onConnect(c Connect) {
	if _, exists := h.store.clients[c.ID]; exists {
		h.log.Warnf("duplicate connect for %s ignored", c.ID)
		return
	}
	codec := c.Codec
	if codec == nil {
		codec = protocol.JSON
	}
	cl := &client{id: c.ID, conn: c.Conn, codec: codec}
	h.store.clients[c.ID] = cl
	h.log.Infof("client connected: id=%s codec=%s clients=%d", c.ID, codec.Name(), len(h.store.clients))
	h.sendTo(cl, protocol.EvLeaderboard, h.store.leaderboard.Top(0))
}

func (h *Hub) onDisconnect(id PlayerID) {
	cl, ok := h.store.clients[id]
	if !ok {
		return
	}
	h.leaveArena(cl)
	delete(h.store.clients, id)
	if cl.conn != nil {
		cl.conn.Close()
	}
	h.log.Infof("client disconnected: id=%s clients=%d arenas=%d", id, len(h.store.clients), len(h.store.arenas))
}

// ---- 发送 ----

// sendTo 按连接的编码发送一条事件
func (h *Hub) sendTo(cl *client, event string, payload any) bool {
	b, err := cl.codec.Encode(event, payload)
	if err != nil {
		h.log.Errorf("encode %s: %v", event, err)
		return false
	}
	return h.deliver(cl, b)
}

func (h *Hub) deliver(cl *client, b []byte) bool {
	if cl.conn == nil {
		return false
	}
	if !cl.conn.Send(b) {
		h.metrics.IncQueueFull()
		return false
	}
	return true
}

// fanout 发送给一组连接；同一编码只编码一次
func (h *Hub) fanout(targets []*client, event string, payload any) int {
	encoded := make(map[protocol.Codec][]byte, 2)
	n := 0
	for _, cl := range targets {
		b, ok := encoded[cl.codec]
		if !ok {
			var err error
			b, err = cl.codec.Encode(event, payload)
			if err != nil {
				h.log.Errorf("encode %s: %v", event, err)
				return n
			}
			encoded[cl.codec] = b
		}
		if h.deliver(cl, b) {
			n++
		}
	}
	return n
}

// members 竞技场成员对应的连接，except 为空时包含全部
func (h *Hub) members(a *Arena, except PlayerID) []*client {
	out := make([]*client, 0, a.Len())
	for _, p := range a.players {
		if p.ID == except {
			continue
		}
		if cl, ok := h.store.clients[p.ID]; ok {
			out = append(out, cl)
		}
	}
	return out
}

// relay 转发给同一竞技场的其他成员（不含发送者）
func (h *Hub) relay(a *Arena, from PlayerID, event string, payload any) {
	n := h.fanout(h.members(a, from), event, payload)
	h.metrics.AddRelayed(n)
}

// broadcastArena 发送给竞技场全部成员
func (h *Hub) broadcastArena(a *Arena, event string, payload any) {
	n := h.fanout(h.members(a, ""), event, payload)
	h.metrics.AddRelayed(n)
}

// broadcastAll 发送给所有连接（仅排行榜使用）
func (h *Hub) broadcastAll(event string, payload any) {
	targets := make([]*client, 0, len(h.store.clients))
	for _, cl := range h.store.clients {
		targets = append(targets, cl)
	}
	h.fanout(targets, event, payload)
}
