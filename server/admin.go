package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"
)

const adminTimeout = 2 * time.Second

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// HandleArenas 列出当前竞技场及成员
// GET /admin/arenas
// GET /admin/arenas?arena=main-arena  只返回指定竞技场
func HandleArenas(h *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), adminTimeout)
		defer cancel()
		arenas, err := h.Arenas(ctx)
		if err != nil {
			http.Error(w, "hub unavailable", http.StatusServiceUnavailable)
			return
		}
		if name := r.URL.Query().Get("arena"); name != "" {
			for _, a := range arenas {
				if a.Name == name {
					writeJSON(w, a)
					return
				}
			}
			http.Error(w, "arena not found", http.StatusNotFound)
			return
		}
		writeJSON(w, map[string]any{"arenas": arenas, "count": len(arenas)})
	}
}

// difficultyJSON 难度曲线的 HTTP 表示，单位毫秒
type difficultyJSON struct {
	SpawnIntervalBaseMs *int64 `json:"spawnIntervalBaseMs,omitempty"`
	SpawnIntervalMinMs  *int64 `json:"spawnIntervalMinMs,omitempty"`
	LevelUpEveryMs      *int64 `json:"levelUpEveryMs,omitempty"`
}

func toDifficultyJSON(d Difficulty) difficultyJSON {
	ms := func(v time.Duration) *int64 {
		n := v.Milliseconds()
		return &n
	}
	return difficultyJSON{
		SpawnIntervalBaseMs: ms(d.Base),
		SpawnIntervalMinMs:  ms(d.Min),
		LevelUpEveryMs:      ms(d.LevelUpEvery),
	}
}

func (b difficultyJSON) patch() DifficultyPatch {
	dur := func(ms *int64) *time.Duration {
		if ms == nil {
			return nil
		}
		d := time.Duration(*ms) * time.Millisecond
		return &d
	}
	return DifficultyPatch{
		Base:         dur(b.SpawnIntervalBaseMs),
		Min:          dur(b.SpawnIntervalMinMs),
		LevelUpEvery: dur(b.LevelUpEveryMs),
	}
}

// HandleDifficulty 读取与热更新障碍物难度曲线
// GET /admin/difficulty   返回当前配置
// POST /admin/difficulty  以 JSON 载荷更新部分字段，返回更新后的配置
func HandleDifficulty(h *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), adminTimeout)
		defer cancel()

		switch r.Method {
		case http.MethodGet:
			d, err := h.Difficulty(ctx)
			if err != nil {
				http.Error(w, "hub unavailable", http.StatusServiceUnavailable)
				return
			}
			writeJSON(w, toDifficultyJSON(d))
		case http.MethodPost:
			var body difficultyJSON
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				http.Error(w, "invalid json", http.StatusBadRequest)
				return
			}
			d, err := h.UpdateDifficulty(ctx, body.patch())
			switch {
			case errors.Is(err, ErrInvalidDifficulty):
				http.Error(w, err.Error(), http.StatusBadRequest)
			case err != nil:
				http.Error(w, "hub unavailable", http.StatusServiceUnavailable)
			default:
				writeJSON(w, toDifficultyJSON(d))
			}
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

// HandleLeaderboard 输出排行榜
// GET /leaderboard?limit=10
func HandleLeaderboard(h *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), adminTimeout)
		defer cancel()
		entries, err := h.Leaderboard(ctx)
		if err != nil {
			http.Error(w, "hub unavailable", http.StatusServiceUnavailable)
			return
		}
		limit := 0
		if s := r.URL.Query().Get("limit"); s != "" {
			if limit, err = strconv.Atoi(s); err != nil || limit < 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
		}
		if limit > 0 && len(entries) > limit {
			entries = entries[:limit]
		}
		writeJSON(w, entries)
	}
}

// HandleMetrics 输出中继运行指标
// GET /metrics
func HandleMetrics(h *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"metrics": h.Metrics().Snapshot()})
	}
}
