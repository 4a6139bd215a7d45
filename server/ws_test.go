package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cubearena/protocol"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

func startServer(t *testing.T) (*httptest.Server, *Hub) {
	t.Helper()
	// 读写协程可能在测试结束后才退出并写日志，这里不用 zaptest
	h := NewHub(NewSessionStore(nil), HubOptions{
		Logger: zap.NewNop().Sugar(),
		Seed:   3,
		Difficulty: Difficulty{
			Base:         20 * time.Millisecond,
			Min:          10 * time.Millisecond,
			LevelUpEvery: time.Hour,
		},
	})
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", HandleWS(h, 64))
	mux.HandleFunc("/admin/arenas", HandleArenas(h))
	mux.HandleFunc("/leaderboard", HandleLeaderboard(h))
	mux.HandleFunc("/metrics", HandleMetrics(h))
	mux.HandleFunc("/admin/difficulty", HandleDifficulty(h))
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.CloseClientConnections()
		srv.Close()
		cancel()
		<-h.Done()
	})
	return srv, h
}

type wsClient struct {
	t     *testing.T
	ws    *websocket.Conn
	codec protocol.Codec
}

func dial(t *testing.T, srv *httptest.Server, query string) *wsClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?" + query
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	codec := protocol.JSON
	if strings.Contains(query, "codec=msgpack") {
		codec = protocol.MsgPack
	}
	return &wsClient{t: t, ws: ws, codec: codec}
}

func (c *wsClient) send(event string, p any) {
	c.t.Helper()
	b, err := c.codec.Encode(event, p)
	if err != nil {
		c.t.Fatalf("encode: %v", err)
	}
	mt := websocket.TextMessage
	if c.codec.Binary() {
		mt = websocket.BinaryMessage
	}
	if err := c.ws.WriteMessage(mt, b); err != nil {
		c.t.Fatalf("write: %v", err)
	}
}

func (c *wsClient) expect(event string) protocol.Envelope {
	c.t.Helper()
	_ = c.ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, b, err := c.ws.ReadMessage()
		if err != nil {
			c.t.Fatalf("waiting for %q: %v", event, err)
		}
		env, err := c.codec.DecodeEnvelope(b)
		if err != nil {
			c.t.Fatalf("decode: %v", err)
		}
		if env.Type == event {
			return env
		}
	}
}

func roleFrom(t *testing.T, c *wsClient) protocol.PlayerRole {
	t.Helper()
	r, err := protocol.DecodePayload[protocol.PlayerRole](c.codec, c.expect(protocol.EvPlayerRole))
	if err != nil {
		t.Fatalf("decode role: %v", err)
	}
	return r
}

func TestWebSocketArenaFlow(t *testing.T) {
	srv, _ := startServer(t)

	a := dial(t, srv, "arena=x&name=alice")
	ra := roleFrom(t, a)
	b := dial(t, srv, "arena=x&name=bob&codec=msgpack")
	rb := roleFrom(t, b)
	if ra.Role != protocol.RolePlayer1 || !ra.IsPlayer1 || rb.Role != protocol.RolePlayer2 || rb.Arena != "x" {
		t.Fatalf("roles: %+v / %+v", ra, rb)
	}
	a.expect(protocol.EvPlayerJoined)

	// JSON 客户端的 move 以 msgpack 转发给对手
	x, y, z := 1.0, 1.0, 2.0
	a.send(protocol.EvMove, protocol.Move{X: &x, Y: &y, Z: &z})
	mv, err := protocol.DecodePayload[protocol.Move](b.codec, b.expect(protocol.EvMove))
	if err != nil {
		t.Fatalf("decode move: %v", err)
	}
	if !mv.HasPosition() || *mv.Z != 2 || mv.Role != protocol.RolePlayer1 || mv.Arena != "x" {
		t.Fatalf("unexpected relayed move: %+v", mv)
	}

	a.send(protocol.EvGameState, protocol.GameState{GameStarted: true})
	b.expect(protocol.EvGameState)
	for _, c := range []*wsClient{a, b} {
		o, err := protocol.DecodePayload[protocol.SpawnObstacle](c.codec, c.expect(protocol.EvSpawnObstacle))
		if err != nil || o.ID == "" {
			t.Fatalf("spawn: %+v err=%v", o, err)
		}
	}

	resp, err := http.Get(srv.URL + "/admin/arenas?arena=x")
	if err != nil {
		t.Fatalf("admin: %v", err)
	}
	defer resp.Body.Close()
	var info ArenaInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		t.Fatalf("admin decode: %v", err)
	}
	if len(info.Players) != 2 || !info.SpawningActive {
		t.Fatalf("unexpected arena info: %+v", info)
	}

	b.send(protocol.EvPlayerHit, protocol.PlayerHit{Score: 42})
	a.expect(protocol.EvPlayerHit)
	lb, err := protocol.DecodePayload[[]protocol.LeaderboardEntry](a.codec, a.expect(protocol.EvLeaderboard))
	if err != nil || len(lb) != 1 || lb[0].Name != "bob" || lb[0].HighScore != 42 {
		t.Fatalf("leaderboard: %+v err=%v", lb, err)
	}
}

func TestWebSocketThirdPlayerGetsError(t *testing.T) {
	srv, _ := startServer(t)

	roleFrom(t, dial(t, srv, "arena=x&name=a"))
	roleFrom(t, dial(t, srv, "arena=x&name=b"))
	c := dial(t, srv, "arena=x&name=c")
	e, err := protocol.DecodePayload[protocol.Error](c.codec, c.expect(protocol.EvError))
	if err != nil || e.Code != protocol.ErrCodeArenaFull {
		t.Fatalf("expected arena-full, got %+v err=%v", e, err)
	}

	// 连接仍可用，可以改加入其他竞技场
	c.send(protocol.EvJoinArena, protocol.JoinArena{Arena: "y"})
	if r := roleFrom(t, c); r.Role != protocol.RolePlayer1 || r.Arena != "y" {
		t.Fatalf("join after rejection: %+v", r)
	}
}

func TestDisconnectNotifiesOpponentOverWebSocket(t *testing.T) {
	srv, h := startServer(t)

	a := dial(t, srv, "arena=x&name=a")
	roleFrom(t, a)
	b := dial(t, srv, "arena=x&name=b")
	roleFrom(t, b)

	b.ws.Close()
	a.expect(protocol.EvPlayerLeft)

	arenas, err := h.Arenas(context.Background())
	if err != nil || len(arenas) != 1 || len(arenas[0].Players) != 1 {
		t.Fatalf("arena after disconnect: %+v err=%v", arenas, err)
	}
}

func TestLeaderboardEndpointLimit(t *testing.T) {
	srv, h := startServer(t)
	h.store.leaderboard.Submit("a", 1)
	h.store.leaderboard.Submit("b", 2)

	resp, err := http.Get(srv.URL + "/leaderboard?limit=1")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var entries []LeaderboardEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name != "b" {
		t.Fatalf("unexpected entries: %+v", entries)
	}

	bad, err := http.Get(srv.URL + "/leaderboard?limit=x")
	if err != nil {
		t.Fatal(err)
	}
	bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", bad.StatusCode)
	}
}

func TestDifficultyEndpointHotUpdate(t *testing.T) {
	srv, h := startServer(t)
	get := func() difficultyJSON {
		t.Helper()
		resp, err := http.Get(srv.URL + "/admin/difficulty")
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		var d difficultyJSON
		if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
			t.Fatal(err)
		}
		return d
	}
	post := func(body string) *http.Response {
		t.Helper()
		resp, err := http.Post(srv.URL+"/admin/difficulty", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		return resp
	}

	if d := get(); *d.SpawnIntervalBaseMs != 20 || *d.SpawnIntervalMinMs != 10 || *d.LevelUpEveryMs != time.Hour.Milliseconds() {
		t.Fatalf("initial difficulty: base=%d min=%d levelUp=%d", *d.SpawnIntervalBaseMs, *d.SpawnIntervalMinMs, *d.LevelUpEveryMs)
	}

	// 只改 base 与 levelUp，min 保持不变
	if resp := post(`{"spawnIntervalBaseMs":50,"levelUpEveryMs":1000}`); resp.StatusCode != http.StatusOK {
		t.Fatalf("update status = %d", resp.StatusCode)
	}
	if d := get(); *d.SpawnIntervalBaseMs != 50 || *d.SpawnIntervalMinMs != 10 || *d.LevelUpEveryMs != 1000 {
		t.Fatalf("after update: base=%d min=%d levelUp=%d", *d.SpawnIntervalBaseMs, *d.SpawnIntervalMinMs, *d.LevelUpEveryMs)
	}
	cur, err := h.Difficulty(context.Background())
	if err != nil || cur.Base != 50*time.Millisecond || cur.LevelUpEvery != time.Second {
		t.Fatalf("hub difficulty = %+v, %v", cur, err)
	}

	for _, body := range []string{`{"spawnIntervalMinMs":80}`, `{"levelUpEveryMs":0}`, `not json`} {
		if resp := post(body); resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: status = %d, want 400", body, resp.StatusCode)
		}
	}
	if d := get(); *d.SpawnIntervalMinMs != 10 || *d.LevelUpEveryMs != 1000 {
		t.Fatalf("rejected update was applied: min=%d levelUp=%d", *d.SpawnIntervalMinMs, *d.LevelUpEveryMs)
	}

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/admin/difficulty", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("DELETE status = %d", resp.StatusCode)
	}
}

func TestMetricsEndpointCountsFrames(t *testing.T) {
	srv, _ := startServer(t)

	a := dial(t, srv, "arena=m&name=a")
	roleFrom(t, a)
	a.send(protocol.EvMove, map[string]any{"x": 1}) // 缺少 y/z
	a.send(protocol.EvPlayerHit, protocol.PlayerHit{Score: 1})
	a.expect(protocol.EvLeaderboard)

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var body struct {
		Metrics map[string]int64 `json:"metrics"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Metrics["frames_in"] != 3 || body.Metrics["dropped_malformed"] != 1 {
		t.Fatalf("unexpected metrics: %+v", body.Metrics)
	}
}
