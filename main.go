package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cubearena/server"
)

// Cube Arena 入口：加载配置与排行榜，启动 Hub 事件循环与 HTTP + WebSocket 服务
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := server.LoadConfig(os.Args[1:])
	if err != nil {
		return err
	}
	// 使用第三方 zap 日志库写入日志文件（带滚动）
	log, err := server.InitLogger(cfg)
	if err != nil {
		return err
	}
	defer server.SyncLogger()

	lb, err := server.LoadLeaderboard(cfg.LeaderboardFile)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := server.NewHub(server.NewSessionStore(lb), server.HubOptions{
		Logger:     log,
		Difficulty: server.NewDifficulty(cfg),
	})
	go hub.Run(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", server.HandleWS(hub, cfg.SendQueueSize))
	// 前后端分离：将 / 映射到静态资源目录
	mux.Handle("/", http.FileServer(http.Dir(cfg.StaticDir)))
	// 管理与监控接口
	mux.HandleFunc("/admin/arenas", server.HandleArenas(hub))
	mux.HandleFunc("/admin/difficulty", server.HandleDifficulty(hub))
	mux.HandleFunc("/leaderboard", server.HandleLeaderboard(hub))
	mux.HandleFunc("/metrics", server.HandleMetrics(hub))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: cfg.Addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Cube Arena listening on %s; leaderboard=%s", cfg.Addr, cfg.LeaderboardFile)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// 优雅退出（Ctrl+C）
	select {
	case <-ctx.Done():
	case err := <-errCh:
		log.Errorf("listen: %v", err)
		return err
	}
	log.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warnf("http shutdown: %v", err)
	}
	<-hub.Done()
	return nil
}
