package server

import "cubearena/protocol"

// 以下为投递到 Hub 事件循环的命令；世界状态只在循环内修改

// Connect 新连接建立
type Connect struct {
	ID    PlayerID
	Conn  Conn
	Codec protocol.Codec
}

// Disconnect 连接断开（读泵退出），重复投递无副作用
type Disconnect struct {
	ID PlayerID
}

// Frame 客户端发来的一帧原始数据，由 Hub 按连接的编码解析
type Frame struct {
	ID   PlayerID
	Data []byte
}

// spawnTick 竞技场生成定时器到期
type spawnTick struct {
	arena   string
	spawner *spawner
}

// arenasQuery / leaderboardQuery 供管理接口读取只读快照
type arenasQuery struct {
	reply chan<- []ArenaInfo
}

type leaderboardQuery struct {
	reply chan<- []LeaderboardEntry
}

// difficultyQuery / difficultyUpdate 管理接口读取与热更新难度曲线
type difficultyQuery struct {
	reply chan<- Difficulty
}

type difficultyUpdate struct {
	patch DifficultyPatch
	reply chan<- difficultyResult
}

type difficultyResult struct {
	d   Difficulty
	err error
}
