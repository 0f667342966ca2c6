package main

import "time"

type Config struct {
	LogLevel string `env:"LOG_LEVEL,default=INFO"`
	Host     string `env:"HOST,default=localhost"`
	Port     int    `env:"PORT,default=8080"`
	// GrpcPort serves grpc.health.v1, 0 disables it.
	GrpcPort int `env:"GRPC_PORT,default=9090"`

	StoreDriver    string `env:"STORE_DRIVER,default=badger"`
	BadgerFilepath string `env:"BADGER_FILEPATH,default=./data/badger"`
	SqlitePath     string `env:"SQLITE_PATH,default=./data/relay.db"`
	LimitMessages  *int   `env:"LIMIT_MESSAGES"`
	RedisAddr      string `env:"REDIS_ADDR"`
	RedisChannel   string `env:"REDIS_CHANNEL,default=chat-relay:messages"`

	WelcomeMessage   string        `env:"WELCOME_MESSAGE,default=Welcome to chat-relay! Type /help for commands."`
	HistoryLimit     int           `env:"HISTORY_LIMIT,default=50"`
	EchoToSender     bool          `env:"ECHO_TO_SENDER,default=true"`
	SendTimeout      time.Duration `env:"SEND_TIMEOUT,default=5s"`
	QueueSize        int           `env:"QUEUE_SIZE,default=256"`
	MaxContentLength int           `env:"MAX_CONTENT_LENGTH,default=1000"`
	MaxFrameSize     int64         `env:"MAX_FRAME_SIZE,default=4096"`
	PongWait         time.Duration `env:"PONG_WAIT,default=60s"`
	AllowedOrigins   string        `env:"ALLOWED_ORIGINS"`

	ResyncInterval       time.Duration `env:"RESYNC_INTERVAL,default=2s"`
	ResyncMaxAttempts    uint          `env:"RESYNC_MAX_ATTEMPTS,default=5"`
	ResyncInitialBackoff time.Duration `env:"RESYNC_INITIAL_BACKOFF,default=100ms"`
	ResyncMaxBackoff     time.Duration `env:"RESYNC_MAX_BACKOFF,default=2s"`
	ChangeStreamBuffer   int           `env:"CHANGE_STREAM_BUFFER,default=1024"`

	RestartInterval     time.Duration `env:"RESTART_INTERVAL,default=200ms"`
	LaneMonitorInterval time.Duration `env:"LANE_MONITOR_INTERVAL,default=30s"`
	LaneWarnThreshold   int           `env:"LANE_WARN_THRESHOLD,default=128"`
	HealthInterval      time.Duration `env:"HEALTH_INTERVAL,default=5s"`

	ModerationWords           string `env:"MODERATION_WORDS"`
	ModerationCharReplacement string `env:"MODERATION_CHARACTER_REPLACEMENT,default=*"`

	// AuthTokenSecret signs resume tokens. Empty generates one per process,
	// so tokens do not survive a restart.
	AuthTokenSecret   string        `env:"AUTH_TOKEN_SECRET"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`
}
