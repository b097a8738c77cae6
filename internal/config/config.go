package config

import (
	"flag"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env    string       `yaml:"env" env:"ENV" env-default:"local"`
	HTTP   HTTPConfig   `yaml:"http"`
	Token  TokenConfig  `yaml:"token"`
	Issuer IssuerConfig `yaml:"issuer"`
	WebRTC WebRTCConfig `yaml:"webrtc"`
	Screen ScreenConfig `yaml:"screen"`
}

type HTTPConfig struct {
	Address      string   `yaml:"address" env:"HTTP_ADDRESS" env-default:""`
	AllowOrigins []string `yaml:"allow_origins" env:"HTTP_ALLOW_ORIGINS" env-separator:","`
	// JoinTimeout bounds how long the bridge endpoint waits for a join to
	// settle before answering.
	JoinTimeout time.Duration `yaml:"join_timeout" env:"HTTP_JOIN_TIMEOUT" env-default:"30s"`
}

// TokenConfig points at the token endpoint. An empty BaseURL means the
// built-in issuer of this server.
type TokenConfig struct {
	BaseURL string        `yaml:"base_url" env:"TOKEN_BASE_URL" env-default:""`
	Path    string        `yaml:"path" env:"TOKEN_PATH" env-default:"/api/Users/getToken"`
	Timeout time.Duration `yaml:"timeout" env:"TOKEN_TIMEOUT" env-default:"15s"`
}

// IssuerConfig configures the development token issuer. It is only mounted
// when Enabled is set.
type IssuerConfig struct {
	Enabled bool          `yaml:"enabled" env:"ISSUER_ENABLED"`
	Secret  string        `yaml:"secret" env:"ISSUER_SECRET" env-default:""`
	TTL     time.Duration `yaml:"ttl" env:"ISSUER_TTL" env-default:"1h"`
}

type WebRTCConfig struct {
	STUNServers   []string      `yaml:"stun_servers" env:"WEBRTC_STUN_SERVERS" env-separator:","`
	GatherTimeout time.Duration `yaml:"gather_timeout" env:"WEBRTC_GATHER_TIMEOUT" env-default:"5s"`
}

type ScreenConfig struct {
	EventBuffer      int `yaml:"event_buffer" env:"SCREEN_EVENT_BUFFER" env-default:"64"`
	SubscriberBuffer int `yaml:"subscriber_buffer" env:"SCREEN_SUBSCRIBER_BUFFER" env-default:"32"`
}

func MustLoad() *Config {
	configPath := fetchConfigPath()
	if configPath == "" {
		panic("config path is empty")
	}

	return MustLoadPath(configPath)
}

func MustLoadPath(configPath string) *Config {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("config file does not exist: " + configPath)
	}

	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		panic("cannot read config: " + err.Error())
	}

	cfg.setDefaults()

	return &cfg
}

func fetchConfigPath() string {
	var res string

	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}

	if res == "" {
		res = "config/local.yaml"
	}

	return res
}

func (c *Config) setDefaults() {
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if len(c.HTTP.AllowOrigins) == 0 {
		c.HTTP.AllowOrigins = []string{"http://localhost:3000"}
	}
	if c.Token.BaseURL == "" {
		c.Token.BaseURL = "http://localhost" + c.HTTP.Address
	}
	if c.Issuer.Secret == "" && c.Env == "local" {
		c.Issuer.Secret = "local-development-secret"
	}
	if len(c.WebRTC.STUNServers) == 0 {
		c.WebRTC.STUNServers = []string{"stun:stun.l.google.com:19302"}
	}
}
