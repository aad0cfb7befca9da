package nakama

const (
	// RpcQuickMatch is the Nakama RPC id clients call to find or create a lobby-capable match.
	RpcQuickMatch = "quick_match"
	// RpcVoiceToken signs a voice login or join token for the caller.
	RpcVoiceToken = "voice_token"

	// MatchName is the authoritative match handler name registered with Nakama.
	MatchName = "wushik_match"
	// GameLabel tags this module's matches in match listings.
	GameLabel = "wushik"

	// matchTickRate is ticks per second; buffered game events go out once per tick.
	matchTickRate = 10
)

// Runtime environment keys.
const (
	EnvConfigPath  = "wushik_config_path"
	EnvVoiceSecret = "vivox_secret"
	EnvVoiceIssuer = "vivox_issuer"
	EnvVoiceDomain = "vivox_domain"
)

// Op codes for client messages and server events.
const (
	// Client -> Server
	OpStartGame int64 = 1
	OpPlayCards int64 = 2
	OpPassTurn  int64 = 3

	// Server -> Client
	OpMatchState     int64 = 100
	OpGameStarted    int64 = 101
	OpHandDealt      int64 = 102 // sent privately
	OpTurnChanged    int64 = 103
	OpCardPlayed     int64 = 104
	OpTurnPassed     int64 = 105
	OpAnnouncement   int64 = 106
	OpRoundEnded     int64 = 107
	OpDunBonus       int64 = 108
	OpPlayerFinished int64 = 109
	OpGameEnded      int64 = 110
	OpGameError      int64 = 111
)
