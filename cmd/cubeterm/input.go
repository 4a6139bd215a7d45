package main

import (
	"context"
	"sync"
	"time"

	"cubearena/client"

	"github.com/nsf/termbox-go"
)

// holdFor 终端没有按键抬起事件，按下后在这段时间内视为仍按住（覆盖按键重复间隔）
const holdFor = 120 * time.Millisecond

// keyboard 把 termbox 按键转换成 client.Intent
type keyboard struct {
	mu    sync.Mutex
	until [4]time.Time // forward, backward, left, right
	jump  bool
}

const (
	dirForward = iota
	dirBackward
	dirLeft
	dirRight
)

func newKeyboard() *keyboard { return &keyboard{} }

// Next 实现 client.InputSource；跳跃只触发一次
func (k *keyboard) Next() client.Intent {
	k.mu.Lock()
	defer k.mu.Unlock()
	now := time.Now()
	in := client.Intent{
		Forward:  now.Before(k.until[dirForward]),
		Backward: now.Before(k.until[dirBackward]),
		Left:     now.Before(k.until[dirLeft]),
		Right:    now.Before(k.until[dirRight]),
		Jump:     k.jump,
	}
	k.jump = false
	return in
}

func (k *keyboard) press(dir int) {
	k.mu.Lock()
	k.until[dir] = time.Now().Add(holdFor)
	k.mu.Unlock()
}

// poll 读取终端事件直到 ctx 结束；q / Esc / Ctrl-C 退出
func (k *keyboard) poll(ctx context.Context, quit context.CancelFunc, sess *client.Session, v *view) {
	go func() {
		<-ctx.Done()
		termbox.Interrupt()
	}()
	for {
		ev := termbox.PollEvent()
		switch ev.Type {
		case termbox.EventInterrupt:
			return
		case termbox.EventError:
			v.notice("input error: " + ev.Err.Error())
			quit()
			return
		case termbox.EventKey:
		default:
			continue
		}

		switch {
		case ev.Key == termbox.KeyEsc || ev.Key == termbox.KeyCtrlC || ev.Ch == 'q':
			quit()
			return
		case ev.Key == termbox.KeyArrowUp || ev.Ch == 'w':
			k.press(dirForward)
		case ev.Key == termbox.KeyArrowDown || ev.Ch == 's':
			k.press(dirBackward)
		case ev.Key == termbox.KeyArrowLeft || ev.Ch == 'a':
			k.press(dirLeft)
		case ev.Key == termbox.KeyArrowRight || ev.Ch == 'd':
			k.press(dirRight)
		case ev.Key == termbox.KeySpace:
			k.mu.Lock()
			k.jump = true
			k.mu.Unlock()
		case ev.Ch == 'g':
			if err := sess.SetGameStarted(true); err != nil {
				v.notice(err.Error())
			}
		case ev.Ch == 'r':
			if err := sess.Reset(); err != nil {
				v.notice(err.Error())
			}
		}
	}
}
