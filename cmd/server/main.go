package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/studyhall/studyhall/internal/api"
	"github.com/studyhall/studyhall/internal/config"
	"github.com/studyhall/studyhall/internal/database"
	"github.com/studyhall/studyhall/internal/janitor"
	"github.com/studyhall/studyhall/internal/server"
	"github.com/studyhall/studyhall/internal/stats"
)

const defaultSigningKey = "5DR2W0Y+WJd0Sto10kW2xw0cNCn3361DWlIrNgllxzQ="

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	addr             string
	dsn              string
	redisURL         string
	signingKey       string
	allowedOrigins   stringSliceFlag
	janitorInterval  time.Duration
	messageRetention time.Duration
)

func main() {
	flag.StringVar(&addr, "addr", "localhost:8000", "server address")
	flag.StringVar(&dsn, "dsn", "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable", "database connection string")
	flag.StringVar(&redisURL, "redis-url", "", "redis URL for cross-instance broadcast (empty disables the bridge)")
	flag.StringVar(&signingKey, "signing-key", defaultSigningKey, "base64 encoded signing key")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.DurationVar(&janitorInterval, "janitor-interval", janitor.DefaultInterval, "interval between storage maintenance sweeps")
	flag.DurationVar(&messageRetention, "message-retention", janitor.DefaultRetention, "how long soft-deleted messages are kept before hard purge")
	flag.Parse()

	logger := log.New(os.Stderr, "[studyhall] ", log.LstdFlags)

	cfg, err := config.NewConfig(addr, dsn, redisURL, signingKey, allowedOrigins)
	if err != nil {
		logger.Fatal("config:", err)
	}

	dbConn, err := database.NewPgStudyHallRepository(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db open:", err)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Fatal("db close:", err)
		}
	}()

	if err := dbConn.Migrate(); err != nil {
		logger.Fatal("migrate:", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal("redis url:", err)
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Fatal("redis ping:", err)
		}
		defer redisClient.Close()
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	chatServer, err := server.NewChatServer(logger, dbConn, redisClient, statsUpdater)
	if err != nil {
		logger.Fatal("new chat server:", err)
	}

	srv := api.NewStudyHallApp(mux, logger, chatServer, dbConn, statsUpdater, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	runCtx, stopRun := context.WithCancel(context.Background())
	go chatServer.Run(runCtx)

	sweeper := janitor.NewJanitor(dbConn, logger, janitorInterval, messageRetention)
	go sweeper.Run()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("HTTP server shutdown:", err)
	}

	logger.Println("shutting down chat server...")
	if err := chatServer.Shutdown(shutDownCtx); err != nil {
		logger.Println("chat server shutdown:", err)
	}

	sweeper.Stop()
	stopRun()

	logger.Println("shutdown complete")
}
