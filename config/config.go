package config

import "time"

// Config groups the engine tuning knobs. Loaded from the environment with
// Netflix/go-env in cmd entrypoints.
type Config struct {
	SocketURL  string `env:"CHAT_SOCKET_URL,required=true"`
	APIBaseURL string `env:"CHAT_API_URL,required=true"`
	Token      string `env:"CHAT_TOKEN"`

	PageSize        int           `env:"PAGE_SIZE,default=20"`
	TypingDebounce  time.Duration `env:"TYPING_DEBOUNCE,default=1500ms"`
	AckTimeout      time.Duration `env:"ACK_TIMEOUT,default=5s"`
	EventBufferSize int           `env:"EVENT_BUFFER_SIZE,default=64"`

	ReconnectMinBackoff time.Duration `env:"RECONNECT_MIN_BACKOFF,default=500ms"`
	ReconnectMaxBackoff time.Duration `env:"RECONNECT_MAX_BACKOFF,default=15s"`

	ArchiveEnabled bool   `env:"ARCHIVE_ENABLED,default=false"`
	BadgerFilepath string `env:"BADGER_FILEPATH"`
	BlugeFilepath  string `env:"BLUGE_FILEPATH"`
	LimitMessages  *int   `env:"LIMIT_MESSAGES"`

	LogLevel string `env:"LOG_LEVEL,default=INFO"`
}
