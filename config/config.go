package config

import (
	"os"
	"strconv"
)

type Config struct {
	Addr          string // TCP listen address
	HTTPAddr      string // WebSocket + metrics listen address, empty disables
	DBPath        string
	ControlSocket string
	ReadTimeout   int // seconds, bounds the login frame and every write
	WriteTimeout  int // seconds
	IdleTimeout   int // seconds, bounds each read of a logged-in session
	MaxConns      int // concurrent connection cap across both listeners
}

func Load() *Config {
	cfg := &Config{
		Addr:          ":7532",
		HTTPAddr:      ":8080",
		DBPath:        "relay.db",
		ControlSocket: "/tmp/relay.sock",
		ReadTimeout:   30,
		WriteTimeout:  10,
		IdleTimeout:   300,
		MaxConns:      1024,
	}

	if addr := os.Getenv("RELAY_ADDR"); addr != "" {
		cfg.Addr = addr
	}

	if addr, ok := os.LookupEnv("RELAY_HTTP_ADDR"); ok {
		cfg.HTTPAddr = addr
	}

	if dbPath := os.Getenv("RELAY_DB_PATH"); dbPath != "" {
		cfg.DBPath = dbPath
	}

	if sock := os.Getenv("RELAY_CONTROL_SOCKET"); sock != "" {
		cfg.ControlSocket = sock
	}

	if timeoutStr := os.Getenv("RELAY_READ_TIMEOUT"); timeoutStr != "" {
		if timeout, err := strconv.Atoi(timeoutStr); err == nil {
			cfg.ReadTimeout = timeout
		}
	}

	if timeoutStr := os.Getenv("RELAY_WRITE_TIMEOUT"); timeoutStr != "" {
		if timeout, err := strconv.Atoi(timeoutStr); err == nil {
			cfg.WriteTimeout = timeout
		}
	}

	if timeoutStr := os.Getenv("RELAY_IDLE_TIMEOUT"); timeoutStr != "" {
		if timeout, err := strconv.Atoi(timeoutStr); err == nil {
			cfg.IdleTimeout = timeout
		}
	}

	if maxStr := os.Getenv("RELAY_MAX_CONNS"); maxStr != "" {
		if n, err := strconv.Atoi(maxStr); err == nil && n > 0 {
			cfg.MaxConns = n
		}
	}

	return cfg
}
