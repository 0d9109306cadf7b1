package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	DB        DBConfig
	Feedback  FeedbackConfig
	WebSocket WebSocketConfig
	Log       LogConfig
}

type ServerConfig struct {
	Address         string
	ReadyTimeout    time.Duration `mapstructure:"ready_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

type DBConfig struct {
	Driver   string // postgres 或 sqlite
	Host     string
	User     string
	Password string
	Name     string
	Port     int
	Path     string // sqlite 檔案路徑
}

// FeedbackConfig 回饋排程與提供者設定
type FeedbackConfig struct {
	RoundThreshold  int           `mapstructure:"round_threshold"`
	RoundTrigger    string        `mapstructure:"round_trigger"` // threshold | round | manual
	MaxRounds       int           `mapstructure:"max_rounds"`    // 0 表示不限
	EnableSecondary bool          `mapstructure:"enable_secondary"`
	PerStatement    bool          `mapstructure:"per_statement"`
	ContextSize     int           `mapstructure:"context_size"`
	Timeout         time.Duration `mapstructure:"timeout"`
	ProviderURL     string        `mapstructure:"provider_url"` // 空字串時使用內建提供者
	Breaker         BreakerConfig `mapstructure:"breaker"`
}

type BreakerConfig struct {
	MaxFailures uint32        `mapstructure:"max_failures"`
	OpenTimeout time.Duration `mapstructure:"open_timeout"`
}

type WebSocketConfig struct {
	MaxConnectionsPerRoom int     `mapstructure:"max_connections_per_room"`
	MessagesPerSecond     float64 `mapstructure:"messages_per_second"`
	Burst                 int     `mapstructure:"burst"`
}

type LogConfig struct {
	Level  string // debug | info | warn | error
	Format string // text | json
}

// SetDefaults 設定預設值，即使沒有設定檔也能啟動
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.ready_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.path", "debate_rooms.db")
	v.SetDefault("db.port", 5432)

	v.SetDefault("feedback.round_threshold", 3)
	v.SetDefault("feedback.round_trigger", "threshold")
	v.SetDefault("feedback.max_rounds", 0)
	v.SetDefault("feedback.enable_secondary", false)
	v.SetDefault("feedback.per_statement", true)
	v.SetDefault("feedback.context_size", 5)
	v.SetDefault("feedback.timeout", 30*time.Second)
	v.SetDefault("feedback.breaker.max_failures", 5)
	v.SetDefault("feedback.breaker.open_timeout", 30*time.Second)

	v.SetDefault("websocket.max_connections_per_room", 64)
	v.SetDefault("websocket.messages_per_second", 5.0)
	v.SetDefault("websocket.burst", 10)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load 讀取設定檔與環境變數 (前綴 DEBATE_ROOM_，例如 DEBATE_ROOM_DB_DRIVER)
// path 為空時在 ./pkg/config 與目前目錄尋找 config.yaml，找不到則只用預設值。
func Load(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./pkg/config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("DEBATE_ROOM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
