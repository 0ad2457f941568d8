package main

import (
	"bufio"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"relay/config"
	"relay/db"
	"relay/server"
)

func main() {
	cfg := config.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	store, err := db.New(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open message store", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	srvConfig := &server.Config{
		Addr:         cfg.Addr,
		ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.IdleTimeout) * time.Second,
		MaxConns:     cfg.MaxConns,
	}

	srv := server.New(store, srvConfig, logger)

	var httpSrv *http.Server
	if cfg.HTTPAddr != "" {
		httpSrv = server.NewHTTPServer(cfg.HTTPAddr, srv, logger)
		go func() {
			logger.Info("http listener started", "addr", cfg.HTTPAddr)
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("http listener failed", "error", err)
			}
		}()
	}

	go startControlSocket(srv, cfg.ControlSocket, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("signal received, shutting down", "signal", sig.String())
		srv.Shutdown()
		if httpSrv != nil {
			httpSrv.Close()
		}
		os.Remove(cfg.ControlSocket)
		os.Exit(0)
	}()

	if err := srv.Start(); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

// startControlSocket serves management commands on a unix socket.
func startControlSocket(srv *server.Server, path string, logger *slog.Logger) {
	os.Remove(path)

	listener, err := net.Listen("unix", path)
	if err != nil {
		logger.Error("failed to create control socket", "path", path, "error", err)
		return
	}
	defer listener.Close()
	defer os.Remove(path)

	logger.Info("control socket listening", "path", path)

	for {
		conn, err := listener.Accept()
		if err != nil {
			continue
		}

		go handleControlCommand(srv, conn, path, logger)
	}
}

func handleControlCommand(srv *server.Server, conn net.Conn, path string, logger *slog.Logger) {
	defer conn.Close()

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return
	}

	switch strings.TrimSpace(line) {
	case "stats":
		conn.Write([]byte("OK|" + srv.Stats() + "\n"))

	case "shutdown":
		conn.Write([]byte("OK|Shutting down\n"))
		conn.Close()

		// Give time for the response to be sent
		time.Sleep(100 * time.Millisecond)

		logger.Info("shutdown requested via control socket")
		srv.Shutdown()
		os.Remove(path)
		os.Exit(0)

	default:
		conn.Write([]byte("ERROR|Unknown command\n"))
	}
}
