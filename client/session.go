package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"cubearena/protocol"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ScorePerSecond 存活计分：每秒 10 分
const ScorePerSecond = 10

const writeWait = 5 * time.Second

// ErrNotJoined 尚未收到 playerRole 时尝试上报
var ErrNotJoined = errors.New("client: not joined to an arena")

// Options 连接参数
type Options struct {
	URL    string // 例如 ws://localhost:8080/ws
	Arena  string
	Name   string
	Codec  protocol.Codec // nil 时使用 JSON
	Dialer *websocket.Dialer
	Logger *zap.SugaredLogger
}

// Session 一条到竞技场服务的连接：读协程把事件分发给 Renderer 并维护本地副本，
// 其余方法可从任意协程调用
type Session struct {
	ws       *websocket.Conn
	codec    protocol.Codec
	log      *zap.SugaredLogger
	renderer Renderer
	replica  *ObstacleReplica

	writeMu sync.Mutex

	mu          sync.Mutex
	role        protocol.PlayerRole
	joined      bool
	gameStarted bool
	gameOver    bool // 本局结果已确定，得分固定为 finalScore
	result      string
	startedAt   time.Time
	finalScore  int
	speedMul    float64
	level       int
}

// Dial 建立连接并发送 join-arena；需要再调用 Run 开始接收事件
func Dial(ctx context.Context, opts Options, r Renderer) (*Session, error) {
	if opts.Codec == nil {
		opts.Codec = protocol.JSON
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if r == nil {
		r = NopRenderer{}
	}
	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	q := u.Query()
	q.Set("codec", opts.Codec.Name())
	u.RawQuery = q.Encode()

	ws, _, err := opts.Dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u.Redacted(), err)
	}
	s := &Session{
		ws:       ws,
		codec:    opts.Codec,
		log:      opts.Logger,
		renderer: r,
		replica:  NewObstacleReplica(),
		speedMul: 1,
		level:    1,
	}
	if err := s.Join(opts.Arena, opts.Name); err != nil {
		_ = ws.Close()
		return nil, err
	}
	return s, nil
}

// Join 加入（或切换到）竞技场
func (s *Session) Join(arena, name string) error {
	return s.send(protocol.EvJoinArena, protocol.JoinArena{Arena: arena, Name: name})
}

func (s *Session) Replica() *ObstacleReplica { return s.replica }

// Role 最近一次分配到的角色
func (s *Session) Role() (protocol.PlayerRole, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role, s.joined
}

// Difficulty 最近一次生成事件携带的等级与下落倍率
func (s *Session) Difficulty() (level int, speedMultiplier float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level, s.speedMul
}

// GameActive 对局进行中且本地玩家未被击中
func (s *Session) GameActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gameStarted && !s.gameOver
}

// Result 本局结果，对局未结束时为空
func (s *Session) Result() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Score 当前得分：对局中按存活时间计算，结束后固定为最终得分
func (s *Session) Score(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scoreLocked(now)
}

func (s *Session) scoreLocked(now time.Time) int {
	if s.gameOver {
		return s.finalScore
	}
	if !s.gameStarted || s.startedAt.IsZero() {
		return 0
	}
	return int(now.Sub(s.startedAt).Seconds() * ScorePerSecond)
}

// Run 读循环，直到连接断开或 ctx 取消
func (s *Session) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = s.ws.Close() })
	defer stop()
	for {
		mt, data, err := s.ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read: %w", err)
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		env, err := s.codec.DecodeEnvelope(data)
		if err != nil {
			s.log.Debugf("drop undecodable frame: %v", err)
			continue
		}
		if err := s.dispatch(env); err != nil {
			s.log.Debugf("drop %s: %v", env.Type, err)
		}
	}
}

// Close 发送关闭帧并断开
func (s *Session) Close() error {
	s.writeMu.Lock()
	_ = s.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	s.writeMu.Unlock()
	return s.ws.Close()
}

func payload[T any](s *Session, env protocol.Envelope) (T, error) {
	return protocol.DecodePayload[T](s.codec, env)
}

func (s *Session) dispatch(env protocol.Envelope) error {
	switch env.Type {
	case protocol.EvPlayerRole:
		r, err := payload[protocol.PlayerRole](s, env)
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.role, s.joined = r, true
		s.mu.Unlock()
		s.renderer.ApplyRole(r)

	case protocol.EvPlayerJoined:
		p, err := payload[protocol.PlayerInfo](s, env)
		if err != nil {
			return err
		}
		s.log.Infof("opponent joined: %s (%s)", p.Name, p.Role)

	case protocol.EvPlayerLeft:
		p, err := payload[protocol.PlayerInfo](s, env)
		if err != nil {
			return err
		}
		s.renderer.ApplyPlayerLeft(p)

	case protocol.EvLobbyUpdate:
		l, err := payload[protocol.LobbyUpdate](s, env)
		if err != nil {
			return err
		}
		s.renderer.ApplyLobby(l)

	case protocol.EvMove:
		m, err := payload[protocol.Move](s, env)
		if err != nil {
			return err
		}
		if !m.HasPosition() {
			return errors.New("move without position")
		}
		s.renderer.ApplyOpponentSnapshot(OpponentSnapshot{
			PlayerID:  m.PlayerID,
			Role:      m.Role,
			Position:  protocol.Vec3{X: *m.X, Y: *m.Y, Z: *m.Z},
			IsJumping: m.IsJumping,
			VelocityY: m.VelocityY,
			Timestamp: m.Timestamp,
		})

	case protocol.EvSyncObstacles:
		so, err := payload[protocol.SyncObstacles](s, env)
		if err != nil {
			return err
		}
		s.replica.Replace(so.Obstacles)
		s.renderer.ApplyObstacleSnapshot(so.Obstacles, true)

	case protocol.EvObstacleCreated:
		oc, err := payload[protocol.ObstacleCreated](s, env)
		if err != nil {
			return err
		}
		s.replica.Spawn(oc.Obstacle)
		s.renderer.ApplyObstacleSnapshot([]protocol.Obstacle{oc.Obstacle}, false)

	case protocol.EvSpawnObstacle:
		so, err := payload[protocol.SpawnObstacle](s, env)
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.level, s.speedMul = so.Level, so.SpeedMultiplier
		s.mu.Unlock()
		s.replica.Spawn(so.Obstacle)
		s.renderer.ApplyObstacleSnapshot([]protocol.Obstacle{so.Obstacle}, false)

	case protocol.EvObstacleCollision:
		c, err := payload[protocol.ObstacleCollision](s, env)
		if err != nil {
			return err
		}
		if s.replica.Remove(c.ObstacleID) {
			s.renderer.RemoveObstacle(c.ObstacleID)
		}

	case protocol.EvGameState:
		g, err := payload[protocol.GameState](s, env)
		if err != nil {
			return err
		}
		s.applyGameState(g.GameStarted)
		s.renderer.ApplyGameState(g)

	case protocol.EvPlayerHit:
		h, err := payload[protocol.PlayerHit](s, env)
		if err != nil {
			return err
		}
		s.renderer.ApplyPlayerHit(h)
		return s.applyPlayerHit(h, time.Now())

	case protocol.EvGameReset:
		s.replica.Clear()
		s.applyGameState(true)
		s.renderer.ApplyReset()

	case protocol.EvLeaderboard:
		entries, err := payload[[]protocol.LeaderboardEntry](s, env)
		if err != nil {
			return err
		}
		s.renderer.ApplyLeaderboard(entries)

	case protocol.EvError:
		e, err := payload[protocol.Error](s, env)
		if err != nil {
			return err
		}
		s.log.Warnf("server error: code=%s arena=%s %s", e.Code, e.Arena, e.Message)
		s.renderer.ApplyError(e)

	default:
		return fmt.Errorf("unknown event %q", env.Type)
	}
	return nil
}

// applyGameState 开局时重置计分与 game over 标记
func (s *Session) applyGameState(started bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if started && (!s.gameStarted || s.gameOver) {
		s.startedAt = time.Now()
		s.gameOver = false
		s.result = ""
		s.finalScore = 0
	}
	s.gameStarted = started
}

// applyPlayerHit 对手被击中时本地仍存活则按当前得分获胜并上报；
// 本地已被击中则改记为平局。自己被击中的回显只结束对局。
func (s *Session) applyPlayerHit(h protocol.PlayerHit, now time.Time) error {
	s.mu.Lock()
	if !s.joined || h.Player == s.role.Role {
		s.gameStarted = false
		s.mu.Unlock()
		return nil
	}
	var result string
	switch {
	case s.gameOver && s.result == protocol.ResultLose:
		result = protocol.ResultDraw
	case !s.gameOver && s.gameStarted:
		s.finalScore = s.scoreLocked(now)
		s.gameOver = true
		result = protocol.ResultWin
	}
	s.gameStarted = false
	if result == "" {
		s.mu.Unlock()
		return nil
	}
	s.result = result
	score, role := s.finalScore, s.role
	s.mu.Unlock()

	s.renderer.ApplyGameOver(result, score)
	if result != protocol.ResultWin {
		return nil
	}
	return s.send(protocol.EvPlayerHit, protocol.PlayerHit{
		Player: role.Role,
		Score:  score,
		Result: protocol.ResultWin,
		Arena:  role.Arena,
	})
}

// SetGameStarted 开始或停止本竞技场的对局
func (s *Session) SetGameStarted(started bool) error {
	arena, err := s.arena()
	if err != nil {
		return err
	}
	if err := s.send(protocol.EvGameState, protocol.GameState{GameStarted: started, Arena: arena}); err != nil {
		return err
	}
	s.applyGameState(started)
	return nil
}

// Reset 请求清空障碍物并重新开局
func (s *Session) Reset() error {
	arena, err := s.arena()
	if err != nil {
		return err
	}
	return s.send(protocol.EvReset, protocol.Reset{Arena: arena})
}

// ReportCollision 本地检测到某障碍物被撞上：先从副本移除，再通知对手。
// 副本中已不存在时不再发送。
func (s *Session) ReportCollision(obstacleID string) error {
	s.mu.Lock()
	role, joined := s.role, s.joined
	s.mu.Unlock()
	if !joined {
		return ErrNotJoined
	}
	if !s.replica.Remove(obstacleID) {
		return nil
	}
	s.renderer.RemoveObstacle(obstacleID)
	return s.send(protocol.EvObstacleCollision, protocol.ObstacleCollision{
		ObstacleID: obstacleID,
		PlayerID:   role.PlayerID,
		PlayerRole: role.Role,
		Arena:      role.Arena,
	})
}

// ReportGameOver 本地玩家被击中（lose）；每局只上报一次，返回是否实际发送。
// 已经以 win 结束的对局不再上报
func (s *Session) ReportGameOver(score int) (bool, error) {
	s.mu.Lock()
	if !s.joined {
		s.mu.Unlock()
		return false, ErrNotJoined
	}
	if s.gameOver {
		s.mu.Unlock()
		return false, nil
	}
	s.gameOver = true
	s.result = protocol.ResultLose
	s.finalScore = score
	role := s.role
	s.mu.Unlock()

	s.renderer.ApplyGameOver(protocol.ResultLose, score)
	err := s.send(protocol.EvPlayerHit, protocol.PlayerHit{
		Player: role.Role,
		Score:  score,
		Result: protocol.ResultLose,
		Arena:  role.Arena,
	})
	return err == nil, err
}

// RunMoveLoop 以固定间隔上报本地位置，与渲染帧率无关
func (s *Session) RunMoveLoop(ctx context.Context, src StateSource) error {
	ticker := time.NewTicker(protocol.MoveIntervalMs * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if err := s.sendMove(src.State(), now); err != nil {
				if errors.Is(err, ErrNotJoined) {
					continue
				}
				return err
			}
		}
	}
}

func (s *Session) sendMove(st AvatarState, now time.Time) error {
	arena, err := s.arena()
	if err != nil {
		return err
	}
	x, y, z := st.Position.X, st.Position.Y, st.Position.Z
	return s.send(protocol.EvMove, protocol.Move{
		X: &x, Y: &y, Z: &z,
		IsJumping: st.IsJumping,
		VelocityY: st.VelocityY,
		Arena:     arena,
		Timestamp: now.UnixMilli(),
	})
}

func (s *Session) arena() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.joined {
		return "", ErrNotJoined
	}
	return s.role.Arena, nil
}

// send gorilla 连接同一时刻只允许一个写者
func (s *Session) send(event string, p any) error {
	b, err := s.codec.Encode(event, p)
	if err != nil {
		return err
	}
	mt := websocket.TextMessage
	if s.codec.Binary() {
		mt = websocket.BinaryMessage
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.ws.WriteMessage(mt, b); err != nil {
		return fmt.Errorf("write %s: %w", event, err)
	}
	return nil
}
