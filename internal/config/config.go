// Package config loads robot settings from the environment (.env supported)
// and mail settings from a small JSON document.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBHost     string
	DBPort     string
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string

	DailyTable   string
	HistoryTable string

	PollInterval time.Duration
	ExportFormat string // "csv" or "xlsx"
	ExportDir    string
	TimingLog    string
	StatusAddr   string // empty disables the status server
	MailConfig   string
}

// Load reads .env if present, then the process environment. Missing optional
// values fall back to defaults; database credentials are validated by the
// caller when it builds a connection.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		DBHost:       os.Getenv("DB_HOST"),
		DBPort:       envOr("DB_PORT", "5432"),
		DBName:       os.Getenv("DB_NAME"),
		DBUser:       os.Getenv("DB_USER"),
		DBPassword:   os.Getenv("DB_PASSWORD"),
		DBSSLMode:    envOr("DB_SSLMODE", "require"),
		DailyTable:   envOr("DAILY_TABLE", "cac40_daily_data"),
		HistoryTable: envOr("HISTORY_TABLE", "cac40_history_data"),
		PollInterval: 60 * time.Second,
		ExportFormat: envOr("EXPORT_FORMAT", "csv"),
		ExportDir:    envOr("EXPORT_DIR", "Files"),
		TimingLog:    envOr("TIMING_LOG", "execution_times.txt"),
		StatusAddr:   os.Getenv("STATUS_ADDR"),
		MailConfig:   envOr("MAIL_CONFIG", "configuration/mail.json"),
	}
	if v := os.Getenv("POLL_INTERVAL"); v != "" {
		if sec, err := strconv.Atoi(v); err == nil && sec > 0 {
			cfg.PollInterval = time.Duration(sec) * time.Second
		}
	}
	return cfg
}

// DSN builds a lib/pq keyword connection string from the database fields.
func (c Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode)
}

// Mail is the SMTP document: host, port, sender credentials and a
// comma-separated recipient list.
type Mail struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	To       string `json:"to"`
}

// Recipients splits the To field, dropping empty entries.
func (m Mail) Recipients() []string {
	parts := strings.Split(m.To, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// LoadMail reads the JSON mail document at path, then applies MAIL_* env
// overrides so secrets can stay out of the file.
func LoadMail(path string) (Mail, error) {
	var m Mail
	b, err := os.ReadFile(path)
	if err != nil {
		return m, fmt.Errorf("read mail config: %w", err)
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return m, fmt.Errorf("parse mail config: %w", err)
	}
	if v := os.Getenv("MAIL_HOST"); v != "" {
		m.Host = v
	}
	if v := os.Getenv("MAIL_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			m.Port = p
		}
	}
	if v := os.Getenv("MAIL_USER"); v != "" {
		m.User = v
	}
	if v := os.Getenv("MAIL_PASSWORD"); v != "" {
		m.Password = v
	}
	if v := os.Getenv("MAIL_TO"); v != "" {
		m.To = v
	}
	return m, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
