package config

import (
	"errors"
	"os"
	"strconv"
)

type Config struct {
	Port                  string
	DatabaseDSN           string
	AccessTokenSecret     string
	RefreshTokenSecret    string
	Env                   string
	AccessTokenTTLMinutes int
	RefreshTokenTTLDays   int
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v, err := strconv.Atoi(getenv(key, strconv.Itoa(def)))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

// Load 从环境变量加载配置。access 与 refresh token 使用各自独立的密钥和有效期。
func Load() Config {
	return Config{
		Port:                  getenv("APP_PORT", "8080"),
		DatabaseDSN:           getenv("DATABASE_DSN", "host=localhost user=postgres password=postgres dbname=messenger port=5432 sslmode=disable TimeZone=UTC"),
		AccessTokenSecret:     getenv("JWT_ACCESS_TOKEN_SECRET", "dev-access-secret-change-me"),
		RefreshTokenSecret:    getenv("JWT_REFRESH_TOKEN_SECRET", "dev-refresh-secret-change-me"),
		Env:                   getenv("APP_ENV", "dev"),
		AccessTokenTTLMinutes: getenvInt("ACCESS_TOKEN_TTL_MINUTES", 15),
		RefreshTokenTTLDays:   getenvInt("REFRESH_TOKEN_TTL_DAYS", 7),
	}
}

// Validate 检查配置是否可用于启动：非 dev 环境禁止使用默认密钥。
func Validate(cfg Config) error {
	if cfg.Port == "" {
		return errors.New("config: port is empty")
	}
	if cfg.DatabaseDSN == "" {
		return errors.New("config: database dsn is empty")
	}
	if cfg.Env != "dev" {
		if cfg.AccessTokenSecret == "dev-access-secret-change-me" || cfg.RefreshTokenSecret == "dev-refresh-secret-change-me" {
			return errors.New("config: default jwt secret not allowed outside dev")
		}
	}
	if cfg.AccessTokenSecret == cfg.RefreshTokenSecret {
		return errors.New("config: access and refresh secrets must differ")
	}
	return nil
}
