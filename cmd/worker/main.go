package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/wapuda/vidfetch/internal/config"
	"github.com/wapuda/vidfetch/internal/delivery"
	"github.com/wapuda/vidfetch/internal/health"
	logx "github.com/wapuda/vidfetch/internal/logs"
	"github.com/wapuda/vidfetch/internal/media"
	"github.com/wapuda/vidfetch/internal/session"
	"github.com/wapuda/vidfetch/internal/worker"
)

func main() {
	logx.Setup(logx.FromEnv("worker"))

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if cfg.Session.Backend != config.BackendRedis {
		log.Fatal().Msg("worker process needs SESSION_BACKEND=redis to share sessions with the bot")
	}
	if cfg.Storage.TempDir != "" {
		if err := os.MkdirAll(cfg.Storage.TempDir, 0o755); err != nil {
			log.Fatal().Err(err).Msg("create data dir")
		}
	}

	redisOpt := asynq.RedisClientOpt{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	defer rdb.Close()

	api, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		log.Fatal().Err(err).Msg("telegram auth")
	}

	ff, err := media.NewFFmpeg()
	if err != nil {
		log.Fatal().Err(err).Msg("ffmpeg")
	}
	pipeline := media.NewPipeline(media.NewYTDLP(media.YTDLPConfig{
		SocketTimeout: cfg.Download.SocketTimeout,
		RateLimit:     cfg.Download.RateLimit,
		MergeFormat:   cfg.Download.MergeFormat,
	}), ff)
	router := delivery.NewRouter(api, cfg.Telegram.ChannelID, cfg.Delivery.DirectLimit)
	sessions := session.NewManager(session.NewRedisStore(rdb, cfg.Session.TTL))
	h := worker.NewHandler(pipeline, router, sessions, api, cfg.Storage.TempDir)

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency:     cfg.Worker.Concurrency,
		ShutdownTimeout: 30 * time.Second,
		Logger:          asynqLogger{},
	})
	mux := asynq.NewServeMux()
	worker.Register(mux, h)

	hs := &http.Server{
		Addr: cfg.Health.Addr,
		Handler: health.Router(map[string]health.Check{
			"redis": func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.Health.Addr).Msg("worker health on /health")
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server")
		}
	}()

	log.Info().Int("concurrency", cfg.Worker.Concurrency).Msg("worker starting")
	// Run blocks until SIGTERM/SIGINT and drains in-flight tasks.
	if err := srv.Run(mux); err != nil {
		log.Fatal().Err(err).Msg("asynq server")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = hs.Shutdown(ctx)
}

// asynqLogger routes asynq's own logs through zerolog.
type asynqLogger struct{}

func (asynqLogger) Debug(args ...interface{}) { log.Debug().Msg(fmt.Sprint(args...)) }
func (asynqLogger) Info(args ...interface{})  { log.Info().Msg(fmt.Sprint(args...)) }
func (asynqLogger) Warn(args ...interface{})  { log.Warn().Msg(fmt.Sprint(args...)) }
func (asynqLogger) Error(args ...interface{}) { log.Error().Msg(fmt.Sprint(args...)) }
func (asynqLogger) Fatal(args ...interface{}) { log.Fatal().Msg(fmt.Sprint(args...)) }
