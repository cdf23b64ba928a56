package config

import (
	"fmt"
	"os"
)

type Config struct {
	Port        string
	DBPath      string
	CatalogPath string
	ReportPath  string
	Token       string
	Timezone    string
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PULSE_PORT", "8080"),
		DBPath:      getEnv("PULSE_DB_PATH", ""),
		CatalogPath: getEnv("PULSE_CATALOG_PATH", ""),
		ReportPath:  getEnv("PULSE_REPORT_PATH", ""),
		Token:       getEnv("PULSE_TOKEN", ""),
		Timezone:    getEnv("PULSE_TIMEZONE", "Europe/London"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("PULSE_DB_PATH is required")
	}
	if c.Token == "" {
		return fmt.Errorf("PULSE_TOKEN is required")
	}
	return nil
}

// ValidToken reports whether a bearer token matches the configured one.
func (c *Config) ValidToken(token string) bool {
	return token != "" && token == c.Token
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
