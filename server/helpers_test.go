package server

import (
	"testing"
	"time"

	"cubearena/protocol"

	"go.uber.org/zap/zaptest"
)

type fakeConn struct {
	sendCh chan []byte
	closed bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{sendCh: make(chan []byte, 256)}
}

func (f *fakeConn) Send(b []byte) bool {
	cp := make([]byte, len(b))
	copy(cp, b)
	select {
	case f.sendCh <- cp:
		return true
	default:
		return false
	}
}

func (f *fakeConn) Close() { f.closed = true }

// drain 取出当前已收到的全部事件
func (f *fakeConn) drain(t *testing.T) []protocol.Envelope {
	t.Helper()
	var out []protocol.Envelope
	for {
		select {
		case b := <-f.sendCh:
			env, err := protocol.JSON.DecodeEnvelope(b)
			if err != nil {
				t.Fatalf("decode envelope: %v", err)
			}
			out = append(out, env)
		default:
			return out
		}
	}
}

// waitFor 等待某类事件，超时失败
func (f *fakeConn) waitFor(t *testing.T, event string, timeout time.Duration) protocol.Envelope {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case b := <-f.sendCh:
			env, err := protocol.JSON.DecodeEnvelope(b)
			if err != nil {
				t.Fatalf("decode envelope: %v", err)
			}
			if env.Type == event {
				return env
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q", event)
			return protocol.Envelope{}
		}
	}
}

func ofType(envs []protocol.Envelope, event string) []protocol.Envelope {
	var out []protocol.Envelope
	for _, e := range envs {
		if e.Type == event {
			out = append(out, e)
		}
	}
	return out
}

func payload[T any](t *testing.T, env protocol.Envelope) T {
	t.Helper()
	v, err := protocol.DecodePayload[T](protocol.JSON, env)
	if err != nil {
		t.Fatalf("decode %s payload: %v", env.Type, err)
	}
	return v
}

// newTestHub 不运行事件循环的 Hub，测试直接调用 dispatch
func newTestHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub(NewSessionStore(nil), HubOptions{
		Logger: zaptest.NewLogger(t).Sugar(),
		Seed:   1,
	})
	stopSpawnersOnCleanup(t, h)
	return h
}

// stopSpawnersOnCleanup 测试结束时停止仍在运行的生成定时器。
// 只用于不运行 Run 的 Hub，此时 h.done 永远不会关闭。
func stopSpawnersOnCleanup(t *testing.T, h *Hub) {
	t.Cleanup(func() {
		for _, a := range h.store.arenas {
			h.stopSpawning(a)
		}
	})
}

// connect 同步注册一个连接并丢弃连接时下发的排行榜
func connect(t *testing.T, h *Hub, id string) *fakeConn {
	t.Helper()
	fc := newFakeConn()
	h.dispatch(Connect{ID: PlayerID(id), Conn: fc, Codec: protocol.JSON})
	fc.drain(t)
	return fc
}

func send(t *testing.T, h *Hub, id, event string, p any) {
	t.Helper()
	b, err := protocol.JSON.Encode(event, p)
	if err != nil {
		t.Fatalf("encode %s: %v", event, err)
	}
	h.dispatch(Frame{ID: PlayerID(id), Data: b})
}

func join(t *testing.T, h *Hub, id, arena string) *fakeConn {
	t.Helper()
	fc := connect(t, h, id)
	send(t, h, id, protocol.EvJoinArena, protocol.JoinArena{Arena: arena, Name: id})
	return fc
}

func roleOf(t *testing.T, fc *fakeConn) string {
	t.Helper()
	roles := ofType(fc.drain(t), protocol.EvPlayerRole)
	if len(roles) != 1 {
		t.Fatalf("expected exactly one playerRole, got %d", len(roles))
	}
	return payload[protocol.PlayerRole](t, roles[0]).Role
}

func f64(v float64) *float64 { return &v }

func move(arena string, x, y, z float64) protocol.Move {
	return protocol.Move{X: f64(x), Y: f64(y), Z: f64(z), Arena: arena}
}

func testObstacle(id string) protocol.Obstacle {
	return protocol.Obstacle{
		ID:        id,
		Position:  protocol.Vec3{X: 1, Y: 20, Z: 1},
		ShapeType: protocol.ShapeCube,
		BaseSpeed: 0.06,
	}
}
