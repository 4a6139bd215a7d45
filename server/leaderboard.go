package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"cubearena/protocol"
)

// ErrInvalidEntry 名字为空或分数为负
var ErrInvalidEntry = errors.New("invalid leaderboard entry")

// LeaderboardEntry 以名字为键（非唯一身份）的累计成绩
type LeaderboardEntry = protocol.LeaderboardEntry

// Leaderboard 排行榜；每次变更都整体写盘。
// 只在 Hub 事件循环中修改。
type Leaderboard struct {
	path    string // 为空时只在内存中
	entries []LeaderboardEntry
}

// LoadLeaderboard 从文件加载，文件不存在视为空榜
func LoadLeaderboard(path string) (*Leaderboard, error) {
	lb := &Leaderboard{path: path}
	if path == "" {
		return lb, nil
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return lb, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read leaderboard: %w", err)
	}
	if len(b) == 0 {
		return lb, nil
	}
	if err := json.Unmarshal(b, &lb.entries); err != nil {
		return nil, fmt.Errorf("parse leaderboard %s: %w", path, err)
	}
	return lb, nil
}

// Submit 记录一局成绩：累计 score，刷新 highScore，games+1，随后写盘
func (lb *Leaderboard) Submit(name string, score int) (LeaderboardEntry, error) {
	if name == "" || score < 0 {
		return LeaderboardEntry{}, ErrInvalidEntry
	}
	i := lb.index(name)
	if i < 0 {
		lb.entries = append(lb.entries, LeaderboardEntry{Name: name})
		i = len(lb.entries) - 1
	}
	e := &lb.entries[i]
	e.Score += score
	if score > e.HighScore {
		e.HighScore = score
	}
	e.Games++
	out := *e
	if err := lb.save(); err != nil {
		return out, err
	}
	return out, nil
}

// Get 按名字查询
func (lb *Leaderboard) Get(name string) (LeaderboardEntry, bool) {
	if i := lb.index(name); i >= 0 {
		return lb.entries[i], true
	}
	return LeaderboardEntry{}, false
}

// Top 按最高分降序（同分按名字）返回前 n 条；n<=0 返回全部
func (lb *Leaderboard) Top(n int) []LeaderboardEntry {
	out := make([]LeaderboardEntry, len(lb.entries))
	copy(out, lb.entries)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].HighScore != out[j].HighScore {
			return out[i].HighScore > out[j].HighScore
		}
		return out[i].Name < out[j].Name
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func (lb *Leaderboard) index(name string) int {
	for i := range lb.entries {
		if lb.entries[i].Name == name {
			return i
		}
	}
	return -1
}

// save 先写临时文件再 rename，避免写到一半的文件
func (lb *Leaderboard) save() error {
	if lb.path == "" {
		return nil
	}
	b, err := json.MarshalIndent(lb.entries, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(lb.path), ".leaderboard-*")
	if err != nil {
		return fmt.Errorf("save leaderboard: %w", err)
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("save leaderboard: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("save leaderboard: %w", err)
	}
	if err := os.Rename(tmp.Name(), lb.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("save leaderboard: %w", err)
	}
	return nil
}
