package main

import (
	"fmt"
	"math"
	"sync"

	"cubearena/client"
	"cubearena/protocol"

	"github.com/nsf/termbox-go"
)

// 俯视图：场地 x∈[-10,10] 映射到 2 列/单位，z 映射到 1 行/单位
const (
	colsPerUnit = 2
	originX     = 1
	originY     = 2
	// 低于该高度的障碍物才用实心字符显示，提示即将落地
	dangerHeight = 4.0
)

var shapeGlyph = map[protocol.ShapeType]rune{
	protocol.ShapeCube:         '■',
	protocol.ShapeTetrahedron:  '▲',
	protocol.ShapeOctahedron:   '◆',
	protocol.ShapeDodecahedron: '●',
}

// view 实现 client.Renderer；网络事件只改状态，绘制在帧循环里进行
type view struct {
	client.NopRenderer

	mu          sync.Mutex
	role        protocol.PlayerRole
	lobby       []protocol.PlayerInfo
	opponent    *client.Smoother
	hasOpponent bool
	status      string
	leaderboard []protocol.LeaderboardEntry
}

func newView() *view {
	return &view{opponent: client.NewSmoother(client.DefaultSmoothing), status: "connecting..."}
}

func (v *view) notice(s string) {
	v.mu.Lock()
	v.status = s
	v.mu.Unlock()
}

func (v *view) ApplyRole(r protocol.PlayerRole) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.role = r
	v.status = fmt.Sprintf("joined %s as %s  (g: start, r: reset, q: quit)", r.Arena, r.Role)
}

func (v *view) ApplyLobby(l protocol.LobbyUpdate) {
	v.mu.Lock()
	v.lobby = l.Players
	v.mu.Unlock()
}

func (v *view) ApplyPlayerLeft(p protocol.PlayerInfo) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.hasOpponent = false
	v.opponent = client.NewSmoother(client.DefaultSmoothing)
	v.status = fmt.Sprintf("%s left the arena", p.Name)
}

func (v *view) ApplyOpponentSnapshot(s client.OpponentSnapshot) {
	v.mu.Lock()
	v.opponent.SetTarget(s.Position)
	v.hasOpponent = true
	v.mu.Unlock()
}

func (v *view) ApplyGameState(g protocol.GameState) {
	if g.GameStarted {
		v.notice("game started")
	} else {
		v.notice("game stopped")
	}
}

func (v *view) ApplyPlayerHit(h protocol.PlayerHit) {
	v.notice(fmt.Sprintf("%s (%s) was hit, score %d  (r: play again)", h.Name, h.Player, h.Score))
}

var resultText = map[string]string{
	protocol.ResultWin:  "you win",
	protocol.ResultLose: "you lose",
	protocol.ResultDraw: "draw",
}

func (v *view) ApplyGameOver(result string, score int) {
	v.notice(fmt.Sprintf("%s! final score %d  (r: play again)", resultText[result], score))
}

func (v *view) ApplyReset() { v.notice("game reset") }

func (v *view) ApplyLeaderboard(e []protocol.LeaderboardEntry) {
	v.mu.Lock()
	v.leaderboard = e
	v.mu.Unlock()
}

func (v *view) ApplyError(e protocol.Error) {
	v.notice(fmt.Sprintf("error %s: %s", e.Code, e.Message))
}

// draw 帧循环回调
func (v *view) draw(f client.Frame) {
	v.mu.Lock()
	defer v.mu.Unlock()

	_ = termbox.Clear(termbox.ColorDefault, termbox.ColorDefault)
	w := int(protocol.ArenaSize)*colsPerUnit + 1
	h := int(protocol.ArenaSize) + 1

	printAt(0, 0, termbox.ColorWhite|termbox.AttrBold,
		fmt.Sprintf("cube arena  %s  score %d  level %d", v.role.Role, f.Score, f.Level))
	printAt(0, 1, termbox.ColorYellow, v.status)
	drawFrame(originX-1, originY-1, w+1, h+1)

	for _, o := range f.Obstacles {
		x, y, ok := cell(o.Position)
		if !ok {
			continue
		}
		ch, fg := '·', termbox.ColorBlue
		if o.Position.Y < dangerHeight {
			ch, fg = shapeGlyph[o.ShapeType], hueColor(o.Color.H)
		}
		termbox.SetCell(x, y, ch, fg, termbox.ColorDefault)
	}
	if v.hasOpponent {
		if x, y, ok := cell(v.opponent.Step()); ok {
			termbox.SetCell(x, y, 'O', termbox.ColorMagenta|termbox.AttrBold, termbox.ColorDefault)
		}
	}
	if x, y, ok := cell(f.Avatar.Position); ok {
		fg := termbox.ColorGreen | termbox.AttrBold
		if !f.Active {
			fg = termbox.ColorRed
		}
		termbox.SetCell(x, y, '@', fg, termbox.ColorDefault)
	}

	side := originX + w + 2
	printAt(side, originY, termbox.ColorWhite|termbox.AttrBold, "players")
	for i, p := range v.lobby {
		printAt(side, originY+1+i, termbox.ColorDefault, fmt.Sprintf("%-8s %s", p.Role, p.Name))
	}
	printAt(side, originY+4, termbox.ColorWhite|termbox.AttrBold, "leaderboard")
	for i, e := range v.leaderboard {
		if i == 5 {
			break
		}
		printAt(side, originY+5+i, termbox.ColorDefault, fmt.Sprintf("%-12s %5d (%d)", e.Name, e.HighScore, e.Games))
	}
	_ = termbox.Flush()
}

// cell 世界坐标到屏幕坐标
func cell(p protocol.Vec3) (int, int, bool) {
	half := protocol.ArenaSize / 2
	if math.Abs(p.X) > half || math.Abs(p.Z) > half {
		return 0, 0, false
	}
	x := originX + int(math.Round((p.X+half)*colsPerUnit))
	y := originY + int(math.Round(p.Z+half))
	return x, y, true
}

func hueColor(h float64) termbox.Attribute {
	palette := []termbox.Attribute{
		termbox.ColorRed, termbox.ColorYellow, termbox.ColorGreen,
		termbox.ColorCyan, termbox.ColorBlue, termbox.ColorMagenta,
	}
	i := int(h * float64(len(palette)))
	if i < 0 {
		i = 0
	}
	if i >= len(palette) {
		i = len(palette) - 1
	}
	return palette[i]
}

func printAt(x, y int, fg termbox.Attribute, s string) {
	for _, r := range s {
		termbox.SetCell(x, y, r, fg, termbox.ColorDefault)
		x++
	}
}

func drawFrame(x0, y0, w, h int) {
	fg := termbox.ColorWhite
	for x := x0; x <= x0+w; x++ {
		termbox.SetCell(x, y0, '─', fg, termbox.ColorDefault)
		termbox.SetCell(x, y0+h, '─', fg, termbox.ColorDefault)
	}
	for y := y0; y <= y0+h; y++ {
		termbox.SetCell(x0, y, '│', fg, termbox.ColorDefault)
		termbox.SetCell(x0+w, y, '│', fg, termbox.ColorDefault)
	}
	termbox.SetCell(x0, y0, '┌', fg, termbox.ColorDefault)
	termbox.SetCell(x0+w, y0, '┐', fg, termbox.ColorDefault)
	termbox.SetCell(x0, y0+h, '└', fg, termbox.ColorDefault)
	termbox.SetCell(x0+w, y0+h, '┘', fg, termbox.ColorDefault)
}
