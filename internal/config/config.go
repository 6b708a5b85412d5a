package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Server struct {
	Addr              string
	DatabaseURL       string // empty keeps rooms in memory
	LogLevel          string
	Development       bool
	AllowedOrigins    []string
	MessagesPerSecond float64
	MessageBurst      int
}

type Client struct {
	ServerURL      string
	LogLevel       string
	MicFile        string // Ogg/Opus file played as the microphone
	ConnectTimeout time.Duration
	STUNURLs       []string
}

func DefaultServer() Server {
	return Server{
		Addr:              ":3001",
		LogLevel:          "info",
		MessagesPerSecond: 20,
		MessageBurst:      40,
	}
}

func DefaultClient() Client {
	return Client{
		ServerURL:      "ws://localhost:3001/ws",
		LogLevel:       "info",
		ConnectTimeout: 10 * time.Second,
		STUNURLs:       []string{"stun:stun.l.google.com:19302"},
	}
}

// loadDotEnv reads .env when present. Variables already set win.
func loadDotEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

func LoadServer(files ...string) (Server, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	if err := loadDotEnv(files...); err != nil {
		return Server{}, err
	}

	cfg := DefaultServer()
	if raw := os.Getenv("PORT"); raw != "" {
		cfg.Addr = ":" + raw
	}
	if raw := os.Getenv("ADDR"); raw != "" {
		cfg.Addr = raw
	}
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		cfg.LogLevel = raw
	}
	if raw := os.Getenv("DEVELOPMENT"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return Server{}, fmt.Errorf("DEVELOPMENT: %w", err)
		}
		cfg.Development = v
	}
	cfg.AllowedOrigins = list(os.Getenv("ALLOWED_ORIGINS"))
	if raw := os.Getenv("MESSAGES_PER_SECOND"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 {
			return Server{}, fmt.Errorf("MESSAGES_PER_SECOND: invalid value %q", raw)
		}
		cfg.MessagesPerSecond = v
	}
	if raw := os.Getenv("MESSAGE_BURST"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return Server{}, fmt.Errorf("MESSAGE_BURST: invalid value %q", raw)
		}
		cfg.MessageBurst = v
	}
	return cfg, nil
}

func LoadClient(files ...string) (Client, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	if err := loadDotEnv(files...); err != nil {
		return Client{}, err
	}

	cfg := DefaultClient()
	if raw := os.Getenv("SERVER_URL"); raw != "" {
		cfg.ServerURL = raw
	}
	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		cfg.LogLevel = raw
	}
	cfg.MicFile = os.Getenv("MIC_FILE")
	if raw := os.Getenv("CONNECT_TIMEOUT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return Client{}, fmt.Errorf("CONNECT_TIMEOUT: invalid value %q", raw)
		}
		cfg.ConnectTimeout = d
	}
	if raw := os.Getenv("STUN_URLS"); raw != "" {
		cfg.STUNURLs = list(raw)
	}
	return cfg, nil
}

func list(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
