// cubeterm 终端版客户端：俯视视角显示竞技场、障碍物和对手
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"cubearena/client"
	"cubearena/protocol"

	"github.com/nsf/termbox-go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "cubeterm:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		url     = flag.String("url", "ws://localhost:8080/ws", "arena server websocket url")
		arena   = flag.String("arena", protocol.DefaultArenaName, "arena to join")
		name    = flag.String("name", "", "player name shown on the leaderboard")
		codec   = flag.String("codec", "json", "wire codec: json|msgpack")
		logFile = flag.String("log", "cubeterm.log", "log file path")
	)
	flag.Parse()

	// 终端被界面占用，日志只写文件
	log := newLogger(*logFile)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	view := newView()
	sess, err := client.Dial(ctx, client.Options{
		URL:    *url,
		Arena:  *arena,
		Name:   *name,
		Codec:  protocol.CodecByName(*codec),
		Logger: log,
	}, view)
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := termbox.Init(); err != nil {
		return fmt.Errorf("init terminal: %w", err)
	}
	defer termbox.Close()
	termbox.SetInputMode(termbox.InputEsc)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	keys := newKeyboard()
	go keys.poll(ctx, cancel, sess, view)

	go func() {
		if err := sess.Run(ctx); err != nil && ctx.Err() == nil {
			log.Warnf("connection closed: %v", err)
			view.notice("disconnected: " + err.Error())
		}
	}()

	avatar := client.NewAvatar(protocol.Vec3{})
	go func() {
		if err := sess.RunMoveLoop(ctx, avatar); err != nil && ctx.Err() == nil {
			log.Warnf("move loop: %v", err)
		}
	}()

	err = client.RunFrameLoop(ctx, sess, avatar, keys, view.draw)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func newLogger(path string) *zap.SugaredLogger {
	enc := zap.NewProductionEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	w := zapcore.AddSync(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    5,
		MaxBackups: 1,
	})
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), w, zap.InfoLevel)
	return zap.New(core).Sugar()
}
