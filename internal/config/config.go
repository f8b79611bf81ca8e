package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`

	Auth      AuthConfig      `mapstructure:"auth"`
	Signaling SignalingConfig `mapstructure:"signaling"`
	Call      CallConfig      `mapstructure:"call"`
	ICE       ICEConfig       `mapstructure:"ice"`
	TURN      TURNConfig      `mapstructure:"turn"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Bookings  []BookingSeed   `mapstructure:"bookings"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type SignalingConfig struct {
	RateLimit    int           `mapstructure:"rate_limit"`
	RateInterval time.Duration `mapstructure:"rate_interval"`
	SendBuffer   int           `mapstructure:"send_buffer"`
}

// CallConfig tunes the call agent side.
type CallConfig struct {
	NegotiationTimeout time.Duration `mapstructure:"negotiation_timeout"`
	CandidateBuffer    int           `mapstructure:"candidate_buffer"`
	ReconnectInitial   time.Duration `mapstructure:"reconnect_initial"`
	ReconnectMax       time.Duration `mapstructure:"reconnect_max"`
	ReconnectElapsed   time.Duration `mapstructure:"reconnect_max_elapsed"`
}

type ICEServer struct {
	URLs       []string `mapstructure:"urls" json:"urls"`
	Username   string   `mapstructure:"username" json:"username,omitempty"`
	Credential string   `mapstructure:"credential" json:"credential,omitempty"`
}

type ICEConfig struct {
	Servers []ICEServer `mapstructure:"servers"`
}

type TURNConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Port     int    `mapstructure:"port"`
	Realm    string `mapstructure:"realm"`
	PublicIP string `mapstructure:"public_ip"`
	// Users is "name=password,name2=password2".
	Users string `mapstructure:"users"`
}

type DatabaseConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// BookingSeed feeds the in-memory booking directory when no database is set.
type BookingSeed struct {
	ID           string            `mapstructure:"id"`
	Subject      string            `mapstructure:"subject"`
	Participants []ParticipantSeed `mapstructure:"participants"`
}

type ParticipantSeed struct {
	UserID string `mapstructure:"user_id"`
	Name   string `mapstructure:"name"`
	Role   string `mapstructure:"role"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")

	v.SetDefault("auth.token_ttl", "12h")

	v.SetDefault("signaling.rate_limit", 120)
	v.SetDefault("signaling.rate_interval", "10s")
	v.SetDefault("signaling.send_buffer", 32)

	v.SetDefault("call.negotiation_timeout", "20s")
	v.SetDefault("call.candidate_buffer", 64)
	v.SetDefault("call.reconnect_initial", "500ms")
	v.SetDefault("call.reconnect_max", "10s")
	v.SetDefault("call.reconnect_max_elapsed", "2m")

	v.SetDefault("ice.servers", []map[string]any{
		{"urls": []string{"stun:stun.l.google.com:19302"}},
	})

	v.SetDefault("turn.port", 3478)
	v.SetDefault("turn.realm", "liveclass")

	v.SetDefault("database.max_open_conns", 10)
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("LIVECLASS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Auth.JWTSecret == "" {
		cfg.Auth.JWTSecret = cfg.Secret
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("static", cfg.StaticPath).Msg("config ready")
	return &cfg, nil
}
