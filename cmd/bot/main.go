package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/wapuda/vidfetch/internal/bot"
	"github.com/wapuda/vidfetch/internal/config"
	"github.com/wapuda/vidfetch/internal/delivery"
	"github.com/wapuda/vidfetch/internal/health"
	"github.com/wapuda/vidfetch/internal/jobs"
	logx "github.com/wapuda/vidfetch/internal/logs"
	"github.com/wapuda/vidfetch/internal/media"
	"github.com/wapuda/vidfetch/internal/premium"
	"github.com/wapuda/vidfetch/internal/session"
	"github.com/wapuda/vidfetch/internal/worker"
)

func main() {
	logx.Setup(logx.FromEnv("bot"))
	log.Info().Msg("bot starting")

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		log.Fatal().Err(err).Msg("telegram auth")
	}
	api.Debug = false
	log.Info().Str("username", api.Self.UserName).Msg("bot authorized")

	var rdb *redis.Client
	if cfg.Session.Backend == config.BackendRedis {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
	}
	sessions := session.NewManager(newStore(cfg, rdb))

	users, err := premium.Open(cfg.Storage.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("open premium store")
	}
	defer users.Close()

	extractor := media.NewYTDLP(media.YTDLPConfig{
		SocketTimeout: cfg.Download.SocketTimeout,
		RateLimit:     cfg.Download.RateLimit,
		MergeFormat:   cfg.Download.MergeFormat,
	})

	var (
		queue bot.Enqueuer
		pool  *worker.Pool
	)
	switch cfg.Worker.Mode {
	case config.ModeInline:
		if cfg.Storage.TempDir != "" {
			if err := os.MkdirAll(cfg.Storage.TempDir, 0o755); err != nil {
				log.Fatal().Err(err).Msg("create data dir")
			}
		}
		ff, err := media.NewFFmpeg()
		if err != nil {
			log.Fatal().Err(err).Msg("inline mode needs ffmpeg")
		}
		pipeline := media.NewPipeline(extractor, ff)
		router := delivery.NewRouter(api, cfg.Telegram.ChannelID, cfg.Delivery.DirectLimit)
		h := worker.NewHandler(pipeline, router, sessions, api, cfg.Storage.TempDir)
		pool = worker.NewPool(worker.PoolConfig{
			Workers:   cfg.Worker.Concurrency,
			QueueSize: cfg.Worker.QueueSize,
		}, func(ctx context.Context, p jobs.DeliverPayload) worker.Result {
			ctx, cancel := context.WithTimeout(ctx, cfg.Worker.JobTimeout)
			defer cancel()
			return h.Handle(ctx, p)
		})
		pool.Start()
		queue = pool
	default:
		client := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer client.Close()
		queue = worker.NewQueue(client, cfg.Worker.JobTimeout)
	}
	log.Info().Str("mode", cfg.Worker.Mode).Str("sessions", cfg.Session.Backend).Msg("workers configured")

	checks := map[string]health.Check{}
	if rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	srv := &http.Server{Addr: cfg.Health.Addr, Handler: health.Router(checks), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info().Str("addr", cfg.Health.Addr).Msg("bot health on /health")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server")
		}
	}()

	d := bot.New(api, extractor, sessions, users, queue, bot.Options{
		AdminID:       cfg.Telegram.AdminID,
		MaxFormats:    cfg.Download.MaxFormats,
		FreeMaxHeight: cfg.Download.FreeMaxHeight,
		MetaTimeout:   cfg.Download.MetaTimeout,
	})

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := api.GetUpdatesChan(u)

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case upd, ok := <-updates:
			if !ok {
				break loop
			}
			d.HandleUpdate(ctx, upd)
		}
	}

	log.Info().Msg("bot shutting down")
	api.StopReceivingUpdates()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	if pool != nil {
		if err := pool.Stop(30 * time.Second); err != nil {
			log.Warn().Err(err).Msg("worker pool stop")
		}
	}
}

func newStore(cfg *config.Config, rdb *redis.Client) session.Store {
	if cfg.Session.Backend == config.BackendMemory {
		return session.NewMemoryStore(cfg.Session.TTL)
	}
	return session.NewRedisStore(rdb, cfg.Session.TTL)
}
