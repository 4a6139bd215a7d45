package protocol

// 事件名（信封中的 type 字段）
const (
	EvJoinArena         = "join-arena"
	EvPlayerRole        = "playerRole"
	EvPlayerJoined      = "player-joined"
	EvPlayerLeft        = "player-left"
	EvLobbyUpdate       = "lobbyUpdate"
	EvMove              = "move"
	EvSyncObstacles     = "syncObstacles"
	EvObstacleCreated   = "obstacleCreated"
	EvSpawnObstacle     = "spawn-obstacle"
	EvObstacleCollision = "obstacle-collision"
	EvGameState         = "gameState"
	EvPlayerHit         = "playerHit"
	EvReset             = "reset"
	EvGameReset         = "gameReset"
	EvLeaderboard       = "leaderboardUpdate"
	EvError             = "error"
)

// 角色
const (
	RolePlayer1 = "player1"
	RolePlayer2 = "player2"
)

// 对局结果（playerHit.result）
const (
	ResultLose = "lose" // 上报者被击中
	ResultWin  = "win"  // 对手先被击中，上报者提交存活得分
	ResultDraw = "draw" // 双方都已被击中
)

// 错误码（error 事件）
const (
	ErrCodeArenaFull = "arena-full"
	ErrCodeBadJoin   = "bad-join"
)

// 竞技场几何与节奏常量，与客户端物理保持一致
const (
	ArenaSize        = 20.0
	PlayerSize       = 1.0
	ObstacleSize     = 1.5
	SpawnHeight      = 20.0
	SpawnJitter      = 10.0
	FloorY           = -5.0 // 低于该高度的障碍物在客户端被回收
	GroundLevel      = 1.0
	FrameHz          = 60 // 客户端模拟帧率
	MoveIntervalMs   = 33 // 位置上报间隔，约 30 次/秒
	DefaultArenaName = "main-arena"
	MaxArenaPlayers  = 2
)
