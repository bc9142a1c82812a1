package main

import (
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/Tyrowin/chatrelay/internal/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg := server.NewConfigFromEnv()

	configPath := flag.String("config", "", "path to an INI configuration file")
	addr := flag.String("addr", cfg.Addr, "bind address")
	port := flag.Int("port", cfg.Port, "TCP listener port")
	wsPort := flag.Int("ws-port", cfg.WSPort, "WebSocket gateway port (0 disables the gateway)")
	flag.Parse()

	if *configPath != "" {
		if err := server.LoadConfigFile(*configPath, cfg); err != nil {
			logger.Fatal().Err(err).Msg("Failed to load configuration file")
		}
	}

	// Flags passed explicitly win over both the environment and the file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Addr = *addr
		case "port":
			cfg.Port = *port
		case "ws-port":
			cfg.WSPort = *wsPort
		}
	})
	server.SetConfig(cfg)

	hub := server.NewHub(logger)
	registry := server.NewRegistry(logger)
	dispatcher := server.NewDispatcher(registry, logger)
	go hub.Run()

	tcpServer := server.NewTCPServer(
		net.JoinHostPort(cfg.Addr, strconv.Itoa(cfg.Port)),
		hub, registry, dispatcher, logger,
	)
	if err := tcpServer.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start TCP listener")
	}

	var httpServer *http.Server
	if cfg.WSPort > 0 {
		gateway := server.NewGateway(hub, registry, dispatcher, logger)
		httpServer = server.CreateServer(
			net.JoinHostPort(cfg.Addr, strconv.Itoa(cfg.WSPort)),
			gateway.Routes(),
		)
		go func() {
			if err := server.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("WebSocket gateway stopped")
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down")

	if err := tcpServer.Stop(); err != nil {
		logger.Warn().Err(err).Msg("Error closing TCP listener")
	}
	if httpServer != nil {
		_ = server.ShutdownServer(httpServer, shutdownTimeout)
	}
	if err := hub.Shutdown(shutdownTimeout); err != nil {
		logger.Warn().Err(err).Msg("Hub shutdown incomplete")
	}
}
