package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// ErrNoConfigFile is returned when an explicit config path does not exist.
var ErrNoConfigFile = errors.New("config file does not exist")

type Config struct {
	Env       string          `yaml:"env" env:"WARPCALL_ENV" env-default:"local"`
	HTTP      HTTPConfig      `yaml:"http"`
	Room      RoomConfig      `yaml:"room"`
	WebSocket WebSocketConfig `yaml:"websocket"`
}

type HTTPConfig struct {
	Address         string        `yaml:"address" env:"WARPCALL_HTTP_ADDRESS" env-default:":8080"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"WARPCALL_SHUTDOWN_TIMEOUT" env-default:"10s"`
}

type RoomConfig struct {
	// Capacity is how many members a room admits. Calls are two-party;
	// larger values are only useful for testing.
	Capacity int `yaml:"capacity" env:"WARPCALL_ROOM_CAPACITY" env-default:"2"`
}

type WebSocketConfig struct {
	ReadBufferSize  int   `yaml:"read_buffer_size" env-default:"65536"`
	WriteBufferSize int   `yaml:"write_buffer_size" env-default:"65536"`
	MaxMessageSize  int64 `yaml:"max_message_size" env:"WARPCALL_MAX_MESSAGE_SIZE" env-default:"65536"`
	SendQueue       int   `yaml:"send_queue" env-default:"256"`

	// AllowedOrigins restricts browser origins. Empty allows every origin.
	AllowedOrigins []string `yaml:"allowed_origins" env:"WARPCALL_ALLOWED_ORIGINS" env-separator:","`
}

// Load reads the config at path, or from the environment alone when path is
// empty. Environment variables override file values.
func Load(path string) (*Config, error) {
	var cfg Config

	if path == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("read env: %w", err)
		}
	} else {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNoConfigFile, path)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MustLoad is Load that panics on error. An empty path falls back to
// CONFIG_PATH.
func MustLoad(path string) *Config {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}

	cfg, err := Load(path)
	if err != nil {
		panic("cannot read config: " + err.Error())
	}
	return cfg
}

func (c *Config) validate() error {
	if c.Room.Capacity < 1 {
		return fmt.Errorf("room.capacity must be at least 1, got %d", c.Room.Capacity)
	}
	if c.WebSocket.MaxMessageSize < 1024 {
		return fmt.Errorf("websocket.max_message_size must be at least 1024, got %d", c.WebSocket.MaxMessageSize)
	}
	return nil
}
