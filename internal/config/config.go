package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type ConfigFile struct {
	Address           string
	Port              string
	BehindNginx       bool
	TlsCert           string
	TlsKey            string
	Cors              bool
	CorsOrigins       []string
	PrintHttpRequests bool
	LogToFile         bool
	LogLevel          string
	JwtSecret         string
	SnowflakeWorkerID int64
	// SelfContained runs on sqlite with an in-process lock table, no redis
	SelfContained bool
	SqlitePath    string
	// DbDriver is "mysql" or "postgres" when not self contained
	DbDriver      string
	DbUser        string
	DbPassword    string
	DbAddress     string
	DbPort        string
	DbDatabase    string
	RedisAddress  string
	RedisPassword string
	// TransactionalWrites runs multi-entity writes inside one SQL transaction
	TransactionalWrites      bool
	ReconcileIntervalSeconds int
}

func defaults() ConfigFile {
	return ConfigFile{
		Address:                  "0.0.0.0",
		Port:                     "3000",
		LogLevel:                 "info",
		CorsOrigins:              []string{"http://localhost:5173"},
		SelfContained:            true,
		SqlitePath:               "./database.db",
		DbDriver:                 "mysql",
		RedisAddress:             "localhost:6379",
		TransactionalWrites:      true,
		ReconcileIntervalSeconds: 300,
	}
}

// Load reads the json config file at path, then lets a .env file and the
// environment override secrets and addresses.
func Load(path string) (*ConfigFile, error) {
	cfg := defaults()

	configFile, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer configFile.Close()

	bytes, err := io.ReadAll(configFile)
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(bytes, &cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	// a missing .env file is fine, real environment variables still apply
	_ = godotenv.Load()

	err = applyEnv(&cfg)
	if err != nil {
		return nil, err
	}

	if cfg.JwtSecret == "" {
		return nil, fmt.Errorf("JwtSecret is required, set it in %s or JWT_SECRET", path)
	}
	if !cfg.SelfContained && cfg.DbDriver != "mysql" && cfg.DbDriver != "postgres" {
		return nil, fmt.Errorf("unsupported DbDriver %q", cfg.DbDriver)
	}

	return &cfg, nil
}

func applyEnv(cfg *ConfigFile) error {
	setString(&cfg.Address, "ADDRESS")
	setString(&cfg.Port, "PORT")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.JwtSecret, "JWT_SECRET")
	setString(&cfg.SqlitePath, "SQLITE_PATH")
	setString(&cfg.DbDriver, "DB_DRIVER")
	setString(&cfg.DbUser, "DB_USER")
	setString(&cfg.DbPassword, "DB_PASSWORD")
	setString(&cfg.DbAddress, "DB_ADDRESS")
	setString(&cfg.DbPort, "DB_PORT")
	setString(&cfg.DbDatabase, "DB_DATABASE")
	setString(&cfg.RedisAddress, "REDIS_ADDRESS")
	setString(&cfg.RedisPassword, "REDIS_PASSWORD")

	if val, ok := os.LookupEnv("SELF_CONTAINED"); ok {
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("invalid SELF_CONTAINED: %w", err)
		}
		cfg.SelfContained = b
	}

	if val, ok := os.LookupEnv("SNOWFLAKE_WORKER_ID"); ok {
		id, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid SNOWFLAKE_WORKER_ID: %w", err)
		}
		cfg.SnowflakeWorkerID = id
	}

	return nil
}

func setString(field *string, key string) {
	if val, ok := os.LookupEnv(key); ok {
		*field = val
	}
}

func (c *ConfigFile) IsHttps() bool {
	return c.TlsCert != "" && c.TlsKey != ""
}

func (c *ConfigFile) FullAddress() string {
	protocol := "http"
	if c.IsHttps() {
		protocol = "https"
	}
	return fmt.Sprintf("%s://%s:%s", protocol, c.Address, c.Port)
}
