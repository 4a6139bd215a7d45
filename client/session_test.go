package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"cubearena/protocol"
	"cubearena/server"

	"go.uber.org/zap"
)

// recorder 记录收到的回调，并把事件名推给 events 供测试等待
type recorder struct {
	NopRenderer
	mu          sync.Mutex
	role        protocol.PlayerRole
	opponent    OpponentSnapshot
	removed     []string
	leaderboard []protocol.LeaderboardEntry
	lastErr     protocol.Error
	result      string
	finalScore  int
	events      chan string
}

func newRecorder() *recorder { return &recorder{events: make(chan string, 1024)} }

func (r *recorder) note(ev string) {
	select {
	case r.events <- ev:
	default:
	}
}

func (r *recorder) ApplyRole(p protocol.PlayerRole) {
	r.mu.Lock()
	r.role = p
	r.mu.Unlock()
	r.note("role")
}

func (r *recorder) ApplyOpponentSnapshot(s OpponentSnapshot) {
	r.mu.Lock()
	r.opponent = s
	r.mu.Unlock()
	r.note("opponent")
}

func (r *recorder) ApplyObstacleSnapshot([]protocol.Obstacle, bool) { r.note("obstacles") }

func (r *recorder) RemoveObstacle(id string) {
	r.mu.Lock()
	r.removed = append(r.removed, id)
	r.mu.Unlock()
	r.note("remove")
}

func (r *recorder) ApplyGameState(protocol.GameState)   { r.note("gameState") }
func (r *recorder) ApplyPlayerHit(protocol.PlayerHit)   { r.note("playerHit") }
func (r *recorder) ApplyPlayerLeft(protocol.PlayerInfo) { r.note("left") }

func (r *recorder) ApplyGameOver(result string, score int) {
	r.mu.Lock()
	r.result, r.finalScore = result, score
	r.mu.Unlock()
	r.note("gameOver")
}

func (r *recorder) ApplyLeaderboard(e []protocol.LeaderboardEntry) {
	r.mu.Lock()
	r.leaderboard = e
	r.mu.Unlock()
	r.note("leaderboard")
}

func (r *recorder) ApplyError(e protocol.Error) {
	r.mu.Lock()
	r.lastErr = e
	r.mu.Unlock()
	r.note("error")
}

func (r *recorder) wait(t *testing.T, ev string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case got := <-r.events:
			if got == ev {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q", ev)
		}
	}
}

// waitEntry 等到排行榜中出现 name
func (r *recorder) waitEntry(t *testing.T, name string) protocol.LeaderboardEntry {
	t.Helper()
	for {
		r.wait(t, "leaderboard")
		r.mu.Lock()
		lb := r.leaderboard
		r.mu.Unlock()
		for _, e := range lb {
			if e.Name == name {
				return e
			}
		}
	}
}

func startArenaServer(t *testing.T) string {
	t.Helper()
	h := server.NewHub(server.NewSessionStore(nil), server.HubOptions{
		Logger: zap.NewNop().Sugar(),
		Difficulty: server.Difficulty{
			Base:         20 * time.Millisecond,
			Min:          10 * time.Millisecond,
			LevelUpEvery: time.Hour,
		},
	})
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", server.HandleWS(h, 256))
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.CloseClientConnections()
		srv.Close()
		cancel()
		<-h.Done()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func connect(t *testing.T, ctx context.Context, url, arena, name string, codec protocol.Codec) (*Session, *recorder) {
	t.Helper()
	rec := newRecorder()
	s, err := Dial(ctx, Options{URL: url, Arena: arena, Name: name, Codec: codec}, rec)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	go s.Run(ctx)
	return s, rec
}

func TestSessionTwoPlayerGame(t *testing.T) {
	url := startArenaServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s1, r1 := connect(t, ctx, url, "x", "alice", nil)
	r1.wait(t, "role")
	s2, r2 := connect(t, ctx, url, "x", "bob", protocol.MsgPack)
	r2.wait(t, "role")

	role1, _ := s1.Role()
	role2, _ := s2.Role()
	if role1.Role != protocol.RolePlayer1 || role2.Role != protocol.RolePlayer2 || role2.Arena != "x" {
		t.Fatalf("roles: %+v / %+v", role1, role2)
	}

	// 位置上报循环把 bob 的位置带给 alice
	go s2.RunMoveLoop(ctx, NewAvatar(protocol.Vec3{X: 3, Z: 4}))
	r1.wait(t, "opponent")
	r1.mu.Lock()
	opp := r1.opponent
	r1.mu.Unlock()
	if opp.Position.X != 3 || opp.Position.Z != 4 || opp.Role != protocol.RolePlayer2 || opp.Timestamp == 0 {
		t.Fatalf("unexpected opponent snapshot: %+v", opp)
	}

	if err := s1.SetGameStarted(true); err != nil {
		t.Fatalf("start: %v", err)
	}
	r2.wait(t, "gameState")
	r1.wait(t, "obstacles")
	r2.wait(t, "obstacles")
	if !s1.GameActive() || !s2.GameActive() {
		t.Fatalf("game should be active on both sides")
	}

	// alice 撞到一个障碍物：双方副本都移除
	id := s1.Replica().Snapshot()[0].ID
	if err := s1.ReportCollision(id); err != nil {
		t.Fatalf("collision: %v", err)
	}
	r2.wait(t, "remove")
	r2.mu.Lock()
	removed := append([]string(nil), r2.removed...)
	r2.mu.Unlock()
	if len(removed) == 0 || removed[len(removed)-1] != id {
		t.Fatalf("opponent did not remove %s: %v", id, removed)
	}

	// 让 alice 的存活得分大于 0
	time.Sleep(150 * time.Millisecond)
	sent, err := s2.ReportGameOver(77)
	if err != nil || !sent {
		t.Fatalf("first game over: sent=%v err=%v", sent, err)
	}
	if sent, _ := s2.ReportGameOver(80); sent {
		t.Fatalf("game over reported twice in one game")
	}
	r1.wait(t, "playerHit")
	r1.wait(t, "gameOver")
	bob := r1.waitEntry(t, "bob")
	if bob.Score != 77 || bob.Games != 1 {
		t.Fatalf("bob entry: %+v", bob)
	}
	if s2.Score(time.Now()) != 77 || s2.Result() != protocol.ResultLose {
		t.Fatalf("loser kept score=%d result=%q", s2.Score(time.Now()), s2.Result())
	}

	// alice 存活：结果为 win，得分冻结并进入排行榜
	won := s1.Score(time.Now())
	if s1.Result() != protocol.ResultWin || won <= 0 || s1.GameActive() {
		t.Fatalf("survivor result=%q score=%d active=%v", s1.Result(), won, s1.GameActive())
	}
	time.Sleep(50 * time.Millisecond)
	if s1.Score(time.Now()) != won {
		t.Fatalf("survivor score kept counting: %d -> %d", won, s1.Score(time.Now()))
	}
	r1.mu.Lock()
	shown, shownScore := r1.result, r1.finalScore
	r1.mu.Unlock()
	if shown != protocol.ResultWin || shownScore != won {
		t.Fatalf("renderer got result=%q score=%d", shown, shownScore)
	}
	alice := r2.waitEntry(t, "alice")
	if alice.Score != won || alice.Games != 1 {
		t.Fatalf("alice entry: %+v, want score %d", alice, won)
	}
	r2.mu.Lock()
	lost := r2.result
	r2.mu.Unlock()
	if lost != protocol.ResultLose {
		t.Fatalf("loser renderer result = %q", lost)
	}
	if sent, _ := s1.ReportGameOver(5); sent {
		t.Fatalf("winner must not report a hit after the game ended")
	}
}

func TestSessionDrawWhenBothHit(t *testing.T) {
	rec := newRecorder()
	s := &Session{
		renderer:   rec,
		replica:    NewObstacleReplica(),
		role:       protocol.PlayerRole{Role: protocol.RolePlayer1, Arena: "x"},
		joined:     true,
		gameOver:   true,
		result:     protocol.ResultLose,
		finalScore: 42,
	}
	if err := s.applyPlayerHit(protocol.PlayerHit{Player: protocol.RolePlayer2, Score: 40}, time.Now()); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if s.Result() != protocol.ResultDraw || s.Score(time.Now()) != 42 {
		t.Fatalf("result=%q score=%d", s.Result(), s.Score(time.Now()))
	}
	if rec.result != protocol.ResultDraw || rec.finalScore != 42 {
		t.Fatalf("renderer got %q/%d", rec.result, rec.finalScore)
	}

	// 自己被击中的回显不改变结果
	if err := s.applyPlayerHit(protocol.PlayerHit{Player: protocol.RolePlayer1}, time.Now()); err != nil {
		t.Fatalf("echo: %v", err)
	}
	if s.Result() != protocol.ResultDraw {
		t.Fatalf("echo changed result to %q", s.Result())
	}
}

func TestSessionIgnoresHitBeforeGameStarts(t *testing.T) {
	rec := newRecorder()
	s := &Session{
		renderer: rec,
		replica:  NewObstacleReplica(),
		role:     protocol.PlayerRole{Role: protocol.RolePlayer2, Arena: "x"},
		joined:   true,
	}
	if err := s.applyPlayerHit(protocol.PlayerHit{Player: protocol.RolePlayer1}, time.Now()); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if s.Result() != "" || rec.result != "" {
		t.Fatalf("idle session got a result: %q", s.Result())
	}
}

func TestSessionArenaFullError(t *testing.T) {
	url := startArenaServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, r1 := connect(t, ctx, url, "x", "a", nil)
	r1.wait(t, "role")
	_, r2 := connect(t, ctx, url, "x", "b", nil)
	r2.wait(t, "role")

	s3, r3 := connect(t, ctx, url, "x", "c", nil)
	r3.wait(t, "error")
	r3.mu.Lock()
	code := r3.lastErr.Code
	r3.mu.Unlock()
	if code != protocol.ErrCodeArenaFull {
		t.Fatalf("error code = %q", code)
	}
	if _, joined := s3.Role(); joined {
		t.Fatalf("rejected session must not be joined")
	}
	if err := s3.SetGameStarted(true); err != ErrNotJoined {
		t.Fatalf("SetGameStarted before join: %v", err)
	}
}

func TestStepFrameReportsHit(t *testing.T) {
	url := startArenaServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, r := connect(t, ctx, url, "solo", "carol", nil)
	r.wait(t, "role")
	if err := s.SetGameStarted(true); err != nil {
		t.Fatal(err)
	}

	av := NewAvatar(protocol.Vec3{})
	s.Replica().Spawn(protocol.Obstacle{ID: "boulder", Position: protocol.Vec3{Y: 0.5}})
	f, err := StepFrame(s, av, Intent{}, time.Now())
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if f.Active {
		t.Fatalf("frame still active after a hit")
	}
	for _, o := range f.Obstacles {
		if o.ID == "boulder" {
			t.Fatalf("hit obstacle still in replica")
		}
	}
	r.wait(t, "gameOver")
	r.wait(t, "playerHit")
	r.waitEntry(t, "carol")
	if s.Result() != protocol.ResultLose {
		t.Fatalf("result = %q", s.Result())
	}
}
