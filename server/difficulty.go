package server

import (
	"errors"
	"fmt"
	"time"
)

// MaxLevel 难度上限
const MaxLevel = 10

// Difficulty 难度曲线：随对局时间升级，缩短生成间隔并加快下落
type Difficulty struct {
	Base         time.Duration // 1 级生成间隔
	Min          time.Duration // 满级生成间隔
	LevelUpEvery time.Duration
}

// NewDifficulty 从配置构造
func NewDifficulty(cfg Config) Difficulty {
	return Difficulty{Base: cfg.SpawnIntervalBase, Min: cfg.SpawnIntervalMin, LevelUpEvery: cfg.LevelUpEvery}
}

// ErrInvalidDifficulty 热更新后的难度曲线不合法
var ErrInvalidDifficulty = errors.New("invalid difficulty")

// Validate 间隔为正且满级间隔不大于 1 级间隔
func (d Difficulty) Validate() error {
	if d.Base <= 0 || d.Min <= 0 || d.LevelUpEvery <= 0 {
		return fmt.Errorf("%w: intervals must be positive", ErrInvalidDifficulty)
	}
	if d.Min > d.Base {
		return fmt.Errorf("%w: min interval %v exceeds base %v", ErrInvalidDifficulty, d.Min, d.Base)
	}
	return nil
}

// DifficultyPatch 部分更新，nil 字段保持不变
type DifficultyPatch struct {
	Base         *time.Duration
	Min          *time.Duration
	LevelUpEvery *time.Duration
}

func (p DifficultyPatch) apply(d Difficulty) Difficulty {
	if p.Base != nil {
		d.Base = *p.Base
	}
	if p.Min != nil {
		d.Min = *p.Min
	}
	if p.LevelUpEvery != nil {
		d.LevelUpEvery = *p.LevelUpEvery
	}
	return d
}

// Level 对局进行 elapsed 后的等级，1..MaxLevel
func (d Difficulty) Level(elapsed time.Duration) int {
	if elapsed <= 0 || d.LevelUpEvery <= 0 {
		return 1
	}
	lvl := 1 + int(elapsed/d.LevelUpEvery)
	if lvl > MaxLevel {
		lvl = MaxLevel
	}
	return lvl
}

// SpawnInterval 线性插值：1 级为 Base，满级为 Min
func (d Difficulty) SpawnInterval(level int) time.Duration {
	f := levelFactor(level)
	return d.Base - time.Duration(float64(d.Base-d.Min)*f)
}

// SpeedMultiplier 下落速度倍率，1 级 1.0，满级 3.0（0.05 → 0.15）
func (d Difficulty) SpeedMultiplier(level int) float64 {
	return 1 + 2*levelFactor(level)
}

func levelFactor(level int) float64 {
	if level < 1 {
		level = 1
	}
	if level > MaxLevel {
		level = MaxLevel
	}
	return float64(level-1) / float64(MaxLevel-1)
}
