package server

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config 服务端运行配置：默认值 ← 环境变量（含 .env）← 命令行参数
type Config struct {
	Addr            string
	StaticDir       string
	LogFile         string
	LogLevel        string
	LogConsole      bool
	LeaderboardFile string

	SpawnIntervalBase time.Duration // 1 级难度的生成间隔
	SpawnIntervalMin  time.Duration // 满级难度的生成间隔
	LevelUpEvery      time.Duration // 每隔多久升一级
	SendQueueSize     int
}

// DefaultConfig 与原版客户端常量一致：2000ms 起，最快 800ms
func DefaultConfig() Config {
	return Config{
		Addr:              ":8080",
		StaticDir:         "web",
		LogFile:           "app.log",
		LogLevel:          "debug",
		LeaderboardFile:   "leaderboard.json",
		SpawnIntervalBase: 2000 * time.Millisecond,
		SpawnIntervalMin:  800 * time.Millisecond,
		LevelUpEvery:      15 * time.Second,
		SendQueueSize:     64,
	}
}

// LoadConfig 读取 .env（不存在则忽略）、环境变量与命令行参数
func LoadConfig(args []string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := DefaultConfig()
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}

	fl := flag.NewFlagSet("cubearena", flag.ContinueOnError)
	fl.StringVar(&cfg.Addr, "addr", cfg.Addr, "server listen address, e.g. :8080")
	fl.StringVar(&cfg.StaticDir, "static", cfg.StaticDir, "directory served at /")
	fl.StringVar(&cfg.LogFile, "log", cfg.LogFile, "log file path")
	fl.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug|info|warn|error")
	fl.BoolVar(&cfg.LogConsole, "log-console", cfg.LogConsole, "also log to stderr")
	fl.StringVar(&cfg.LeaderboardFile, "leaderboard", cfg.LeaderboardFile, "leaderboard JSON file")
	fl.DurationVar(&cfg.SpawnIntervalBase, "spawn-base", cfg.SpawnIntervalBase, "obstacle spawn interval at level 1")
	fl.DurationVar(&cfg.SpawnIntervalMin, "spawn-min", cfg.SpawnIntervalMin, "obstacle spawn interval at max level")
	if err := fl.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	str := map[string]*string{
		"ARENA_ADDR":             &c.Addr,
		"ARENA_STATIC_DIR":       &c.StaticDir,
		"ARENA_LOG_FILE":         &c.LogFile,
		"ARENA_LOG_LEVEL":        &c.LogLevel,
		"ARENA_LEADERBOARD_FILE": &c.LeaderboardFile,
	}
	for key, dst := range str {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	// 兼容部署平台注入的 PORT
	if port := os.Getenv("PORT"); port != "" && os.Getenv("ARENA_ADDR") == "" {
		c.Addr = ":" + port
	}
	if v := os.Getenv("ARENA_LOG_CONSOLE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("ARENA_LOG_CONSOLE: %w", err)
		}
		c.LogConsole = b
	}
	durations := map[string]*time.Duration{
		"ARENA_SPAWN_BASE":     &c.SpawnIntervalBase,
		"ARENA_SPAWN_MIN":      &c.SpawnIntervalMin,
		"ARENA_LEVEL_UP_EVERY": &c.LevelUpEvery,
	}
	for key, dst := range durations {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
	}
	if v := os.Getenv("ARENA_SEND_QUEUE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ARENA_SEND_QUEUE: %w", err)
		}
		c.SendQueueSize = n
	}
	return nil
}

// Validate 校验取值范围
func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("config: empty listen address")
	}
	if c.SpawnIntervalBase <= 0 || c.SpawnIntervalMin <= 0 {
		return errors.New("config: spawn intervals must be positive")
	}
	if c.SpawnIntervalMin > c.SpawnIntervalBase {
		return fmt.Errorf("config: spawn-min %v exceeds spawn-base %v", c.SpawnIntervalMin, c.SpawnIntervalBase)
	}
	if c.LevelUpEvery <= 0 {
		return errors.New("config: level-up interval must be positive")
	}
	if c.SendQueueSize <= 0 {
		return errors.New("config: send queue size must be positive")
	}
	return nil
}
