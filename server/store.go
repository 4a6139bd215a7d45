package server

import (
	"sort"

	"cubearena/protocol"
)

// Conn 发送端抽象：Send 非阻塞入队，队列满时返回 false
type Conn interface {
	Send(b []byte) bool
	Close()
}

// client 已连接的会话；arena 为空表示尚未加入竞技场
type client struct {
	id    PlayerID
	conn  Conn
	codec protocol.Codec
	arena string
}

// SessionStore 保存全部连接、竞技场与排行榜。
// 显式传给每个处理函数；只由 Hub 事件循环访问。
type SessionStore struct {
	clients     map[PlayerID]*client
	arenas      map[string]*Arena
	leaderboard *Leaderboard
}

// NewSessionStore lb 为 nil 时使用仅内存的排行榜
func NewSessionStore(lb *Leaderboard) *SessionStore {
	if lb == nil {
		lb = &Leaderboard{}
	}
	return &SessionStore{
		clients:     make(map[PlayerID]*client),
		arenas:      make(map[string]*Arena),
		leaderboard: lb,
	}
}

func (s *SessionStore) Leaderboard() *Leaderboard { return s.leaderboard }
func (s *SessionStore) ClientCount() int          { return len(s.clients) }
func (s *SessionStore) ArenaCount() int           { return len(s.arenas) }

// Arena 按名字查找，不存在返回 nil
func (s *SessionStore) Arena(name string) *Arena { return s.arenas[name] }

// getOrCreateArena 首次加入时惰性创建
func (s *SessionStore) getOrCreateArena(name string) *Arena {
	a, ok := s.arenas[name]
	if !ok {
		a = NewArena(name)
		s.arenas[name] = a
	}
	return a
}

func (s *SessionStore) dropArena(name string) {
	delete(s.arenas, name)
}

// ArenaInfos 按名字排序的竞技场概要
func (s *SessionStore) ArenaInfos() []ArenaInfo {
	out := make([]ArenaInfo, 0, len(s.arenas))
	for _, a := range s.arenas {
		out = append(out, a.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
