package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Database  DatabaseConfig
	Redis     RedisConfig
	Server    ServerConfig
	Jobs      JobsConfig
	Bootstrap BootstrapConfig
}

type DatabaseConfig struct {
	Driver   string // postgres | sqlite
	DSN      string
	MaxOpen  int
	MaxIdle  int
	LogLevel string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type ServerConfig struct {
	Addr string
	Mode string // gin mode: debug | release
}

type JobsConfig struct {
	// FeeDueDay is the day of month regular fees fall due.
	FeeDueDay int
	// LockTTLSeconds bounds how long a batch job may hold its cross-instance lock.
	LockTTLSeconds int
}

type BootstrapConfig struct {
	SeedPlans   bool
	SnowflakeID int64
}

// Load reads configuration from the environment. A .env file is honored when
// present so local setups match the deployed env-var surface.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("CONDOLEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "host=localhost user=condoledger dbname=condoledger sslmode=disable")
	v.SetDefault("database.maxopen", 20)
	v.SetDefault("database.maxidle", 5)
	v.SetDefault("database.loglevel", "warn")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("jobs.feedueday", 10)
	v.SetDefault("jobs.lockttlseconds", 600)
	v.SetDefault("bootstrap.seedplans", false)
	v.SetDefault("bootstrap.snowflakeid", 1)

	cfg := Config{
		Database: DatabaseConfig{
			Driver:   v.GetString("database.driver"),
			DSN:      v.GetString("database.dsn"),
			MaxOpen:  v.GetInt("database.maxopen"),
			MaxIdle:  v.GetInt("database.maxidle"),
			LogLevel: v.GetString("database.loglevel"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Server: ServerConfig{
			Addr: v.GetString("server.addr"),
			Mode: v.GetString("server.mode"),
		},
		Jobs: JobsConfig{
			FeeDueDay:      v.GetInt("jobs.feedueday"),
			LockTTLSeconds: v.GetInt("jobs.lockttlseconds"),
		},
		Bootstrap: BootstrapConfig{
			SeedPlans:   v.GetBool("bootstrap.seedplans"),
			SnowflakeID: v.GetInt64("bootstrap.snowflakeid"),
		},
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Jobs.FeeDueDay < 1 || c.Jobs.FeeDueDay > 28 {
		return fmt.Errorf("fee due day %d out of range [1,28]", c.Jobs.FeeDueDay)
	}
	return nil
}
