package swgate

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port          int    `yaml:"port"`
		Origin        string `yaml:"origin"`
		ControlPrefix string `yaml:"controlPrefix"`
	} `yaml:"server"`

	Cache struct {
		Generation string `yaml:"generation"`
		OfflineURL string `yaml:"offlineURL"`
	} `yaml:"cache"`

	Storage struct {
		Kind     string `yaml:"kind"`
		Path     string `yaml:"path"`
		MaxEntry string `yaml:"maxEntry"`

		maxEntryBytes int64
	} `yaml:"storage"`

	Network struct {
		Timeout           string `yaml:"timeout"`
		NavigationPreload *bool  `yaml:"navigationPreload"`

		timeoutDur time.Duration
	} `yaml:"network"`

	Push struct {
		Title string `yaml:"title"`
		Body  string `yaml:"body"`
		Tag   string `yaml:"tag"`
		URL   string `yaml:"url"`

		MQTT struct {
			Broker   string `yaml:"broker"`
			Topic    string `yaml:"topic"`
			ClientID string `yaml:"clientID"`
			Username string `yaml:"username"`
			Password string `yaml:"password"`
		} `yaml:"mqtt"`
	} `yaml:"push"`

	Rules []Rule `yaml:"rules"`

	Notify struct {
		URLs []string `yaml:"urls"`
	} `yaml:"notify"`

	Logging struct {
		StatsEvery  string `yaml:"statsEvery"`
		Development bool   `yaml:"development"`

		statsEveryDur time.Duration
	} `yaml:"logging"`
}

const (
	StorageMemory = "memory"
	StorageDisk   = "disk"

	defaultOfflineURL = "/offline"
	defaultTargetURL  = "/today"
	defaultPushTag    = "daily-devotional"
	defaultPushTitle  = "Daily Devotional"
	defaultPushBody   = "Today's devotional is ready. Take a moment to read it."
)

func LoadConfig(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return ParseConfig(b)
}

// ParseConfig decodes YAML, applies defaults and validates.
func ParseConfig(b []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.normalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) normalize() error {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Origin == "" {
		return fmt.Errorf("server.origin is required")
	}
	cfg.Server.Origin = strings.TrimRight(cfg.Server.Origin, "/")
	if cfg.Server.ControlPrefix == "" {
		cfg.Server.ControlPrefix = "/_sw"
	}
	cfg.Server.ControlPrefix = "/" + strings.Trim(cfg.Server.ControlPrefix, "/")
	if cfg.Server.ControlPrefix == "/" {
		return fmt.Errorf("server.controlPrefix must not be the site root")
	}

	if strings.TrimSpace(cfg.Cache.Generation) == "" {
		return fmt.Errorf("cache.generation is required")
	}
	if cfg.Cache.OfflineURL == "" {
		cfg.Cache.OfflineURL = defaultOfflineURL
	}
	if !strings.HasPrefix(cfg.Cache.OfflineURL, "/") {
		return fmt.Errorf("cache.offlineURL must be an absolute path, got %q", cfg.Cache.OfflineURL)
	}

	switch cfg.Storage.Kind {
	case "":
		cfg.Storage.Kind = StorageDisk
	case StorageMemory, StorageDisk:
	default:
		return fmt.Errorf("storage.kind: unknown kind %q", cfg.Storage.Kind)
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "./data/leveldb"
	}
	if cfg.Storage.MaxEntry != "" {
		n, err := parseBytes(cfg.Storage.MaxEntry)
		if err != nil {
			return fmt.Errorf("storage.maxEntry: %w", err)
		}
		cfg.Storage.maxEntryBytes = n
	}

	if cfg.Network.Timeout != "" {
		d, err := time.ParseDuration(cfg.Network.Timeout)
		if err != nil {
			return fmt.Errorf("network.timeout: %w", err)
		}
		cfg.Network.timeoutDur = d
	}
	if cfg.Network.NavigationPreload == nil {
		on := true
		cfg.Network.NavigationPreload = &on
	}

	if cfg.Push.Title == "" {
		cfg.Push.Title = defaultPushTitle
	}
	if cfg.Push.Body == "" {
		cfg.Push.Body = defaultPushBody
	}
	if cfg.Push.Tag == "" {
		cfg.Push.Tag = defaultPushTag
	}
	if cfg.Push.URL == "" {
		cfg.Push.URL = defaultTargetURL
	}
	if !strings.HasPrefix(cfg.Push.URL, "/") {
		return fmt.Errorf("push.url must be an absolute path, got %q", cfg.Push.URL)
	}
	if cfg.Push.MQTT.Broker != "" {
		if cfg.Push.MQTT.Topic == "" {
			return fmt.Errorf("push.mqtt.topic is required when push.mqtt.broker is set")
		}
		if cfg.Push.MQTT.ClientID == "" {
			cfg.Push.MQTT.ClientID = "swgate"
		}
	}

	if err := compileRules(cfg.Rules); err != nil {
		return err
	}

	if cfg.Logging.StatsEvery != "" {
		d, err := time.ParseDuration(cfg.Logging.StatsEvery)
		if err != nil {
			return fmt.Errorf("logging.statsEvery: %w", err)
		}
		cfg.Logging.statsEveryDur = d
	}
	return nil
}

// WorkerConfig is the part of Config the worker reads on every event.
type WorkerConfig struct {
	Generation        string
	OfflineURL        string
	DefaultTargetURL  string
	NavigationPreload bool

	PushTitle string
	PushBody  string
	PushTag   string
}

func (cfg Config) Worker() WorkerConfig {
	preload := true
	if cfg.Network.NavigationPreload != nil {
		preload = *cfg.Network.NavigationPreload
	}
	return WorkerConfig{
		Generation:        cfg.Cache.Generation,
		OfflineURL:        cfg.Cache.OfflineURL,
		DefaultTargetURL:  cfg.Push.URL,
		NavigationPreload: preload,
		PushTitle:         cfg.Push.Title,
		PushBody:          cfg.Push.Body,
		PushTag:           cfg.Push.Tag,
	}
}

func (c WorkerConfig) withDefaults() WorkerConfig {
	if c.OfflineURL == "" {
		c.OfflineURL = defaultOfflineURL
	}
	if c.DefaultTargetURL == "" {
		c.DefaultTargetURL = defaultTargetURL
	}
	if c.PushTitle == "" {
		c.PushTitle = defaultPushTitle
	}
	if c.PushBody == "" {
		c.PushBody = defaultPushBody
	}
	if c.PushTag == "" {
		c.PushTag = defaultPushTag
	}
	return c
}

// FetchTimeout is the parsed network.timeout. Zero means no timeout.
func (cfg Config) FetchTimeout() time.Duration { return cfg.Network.timeoutDur }

// MaxEntryBytes is the parsed storage.maxEntry. Zero means unlimited.
func (cfg Config) MaxEntryBytes() int64 { return cfg.Storage.maxEntryBytes }
