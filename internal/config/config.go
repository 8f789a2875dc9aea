package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	log "github.com/sirupsen/logrus"
)

const envPrefix = "BUDGET_"

type Application struct {
	// Area is the scope every ledger row and threshold belongs to.
	Area        string      `koanf:"area"`
	Timezone    string      `koanf:"timezone"`
	Admins      []int64     `koanf:"admins"`
	Database    Database    `koanf:"db"`
	Staging     Staging     `koanf:"staging"`
	Replication Replication `koanf:"replication"`
	Access      Access      `koanf:"access"`
	Contract    Contract    `koanf:"contract"`
	Server      Server      `koanf:"server"`
}

type Database struct {
	Host   string `koanf:"host"`
	Port   int    `koanf:"port"`
	User   string `koanf:"user"`
	Pass   string `koanf:"pass"`
	Name   string `koanf:"name"`
	Schema string `koanf:"schema"`
}

type Staging struct {
	Path          string        `koanf:"path"`
	MaxAge        time.Duration `koanf:"maxage"`
	SweepInterval time.Duration `koanf:"sweepinterval"`
}

type Replication struct {
	URL            string        `koanf:"url"`
	ReconnectDelay time.Duration `koanf:"reconnectdelay"`
	PingInterval   time.Duration `koanf:"pinginterval"`
	RetryDelay     time.Duration `koanf:"retrydelay"`
	// QueueCapacity bounds the outbound queue; 0 means unbounded.
	QueueCapacity int `koanf:"queuecapacity"`
}

type Access struct {
	TTL time.Duration `koanf:"ttl"`
}

type Contract struct {
	Ignored         []string `koanf:"ignored"`
	Families        []string `koanf:"families"`
	CanonicalLength int      `koanf:"canonicallength"`
	Protected       []string `koanf:"protected"`
}

type Server struct {
	Addr string `koanf:"addr"`
}

func Defaults() Application {
	return Application{
		Area:     "default",
		Timezone: "Asia/Ho_Chi_Minh",
		Database: Database{
			Host:   "localhost",
			Port:   5432,
			User:   "budget",
			Pass:   "",
			Name:   "budget",
			Schema: "budget",
		},
		Staging: Staging{
			Path:          "./data/staging.db",
			MaxAge:        24 * time.Hour,
			SweepInterval: time.Hour,
		},
		Replication: Replication{
			ReconnectDelay: time.Second,
			PingInterval:   30 * time.Second,
			RetryDelay:     2 * time.Second,
			QueueCapacity:  10000,
		},
		Access: Access{TTL: 300 * time.Second},
		Contract: Contract{
			Families:        []string{"F"},
			CanonicalLength: 5,
			Protected:       []string{"A10", "9", "11", "1"},
		},
		Server: Server{Addr: ":8181"},
	}
}

// Load layers defaults, the optional YAML file at path and BUDGET_* environment variables,
// in that order. A .env file in the working directory is read into the environment first.
func Load(path string) (Application, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warnf("could not read .env file: %v", err)
	}

	var k = koanf.New(".")

	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		log.Errorf("error loading config from structs: %v", err)
		return Application{}, err
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if os.IsNotExist(err) {
			log.Infof("Config file not found at %s, using defaults and environment variables", path)
		} else {
			log.Errorf("error loading config from YAML: %v", err)
			return Application{}, err
		}
	} else {
		log.Infof("Loaded configuration from file: %s", path)
	}

	err := k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(k, v string) (string, any) {
			k = strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(k, envPrefix)), "_", ".")
			if strings.Contains(v, ",") {
				return k, strings.Split(v, ",")
			}
			return k, v
		},
	}), nil)
	if err != nil {
		log.Errorf("error loading config from envs: %v", err)
		return Application{}, err
	}

	var app Application
	if err := k.Unmarshal("", &app); err != nil {
		return Application{}, err
	}

	if _, err := time.LoadLocation(app.Timezone); err != nil {
		return Application{}, fmt.Errorf("invalid timezone %q: %w", app.Timezone, err)
	}

	return app, nil
}
