package logx

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

type ctxKey int

const (
	CtxKeyJobID ctxKey = iota
	CtxKeyChatID
	CtxKeyUserID
)

// Config controls where and how much the process logs.
type Config struct {
	Service        string `ignored:"true"` // "bot", "worker" or "localtest"
	Level          string `envconfig:"LOG_LEVEL" default:"info"`
	Format         string `envconfig:"LOG_FORMAT" default:"json"` // json|console
	FilePath       string `envconfig:"LOG_FILE"`                  // "" = stdout only
	FileMaxSizeMB  int    `envconfig:"LOG_FILE_MAX_SIZE" default:"50"`
	FileMaxBackups int    `envconfig:"LOG_FILE_MAX_BACKUPS" default:"3"`
	FileMaxAgeDays int    `envconfig:"LOG_FILE_MAX_AGE" default:"7"`
	FileCompress   bool   `envconfig:"LOG_FILE_COMPRESS" default:"true"`
	SampleEveryN   uint32 `envconfig:"LOG_SAMPLE_EVERY"` // keep 1 of N events, 0 = all
}

// FromEnv reads LOG_* variables. A malformed value is reported on stderr and
// the built-in defaults are used instead.
func FromEnv(service string) Config {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		fmt.Fprintf(os.Stderr, "logx: %v; using defaults\n", err)
		c = Config{Level: "info", Format: "json", FileMaxSizeMB: 50, FileMaxBackups: 3, FileMaxAgeDays: 7, FileCompress: true}
	}
	c.Service = service
	c.Level = strings.ToLower(strings.TrimSpace(c.Level))
	if c.Level == "" {
		c.Level = "info"
	}
	c.Format = strings.ToLower(strings.TrimSpace(c.Format))
	return c
}

// Setup installs the global zerolog logger and returns it.
func Setup(c Config) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	lvl, err := zerolog.ParseLevel(c.Level)
	if err != nil || c.Level == "" {
		lvl = zerolog.InfoLevel
	}

	var out io.Writer = os.Stdout
	if c.Format == "console" {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	if c.FilePath != "" {
		out = zerolog.MultiLevelWriter(out, &lumberjack.Logger{
			Filename:   c.FilePath,
			MaxSize:    c.FileMaxSizeMB,
			MaxBackups: c.FileMaxBackups,
			MaxAge:     c.FileMaxAgeDays,
			Compress:   c.FileCompress,
		})
	}

	logger := zerolog.New(out).Level(lvl).With().
		Timestamp().
		Str("svc", c.Service).
		Logger()
	if c.SampleEveryN > 1 {
		logger = logger.Sample(&zerolog.BasicSampler{N: c.SampleEveryN})
	}

	log.Logger = logger
	return logger
}

// WithJob returns a context carrying the job and chat ids picked up by FromCtx.
func WithJob(ctx context.Context, jobID string, chatID int64) context.Context {
	ctx = context.WithValue(ctx, CtxKeyJobID, jobID)
	return context.WithValue(ctx, CtxKeyChatID, chatID)
}

// FromCtx returns the global logger with job, chat and user fields from ctx.
func FromCtx(ctx context.Context) zerolog.Logger {
	l := log.Logger
	if ctx == nil {
		return l
	}
	w := l.With()
	if v, ok := ctx.Value(CtxKeyJobID).(string); ok && v != "" {
		w = w.Str("job", v)
	}
	if v, ok := ctx.Value(CtxKeyChatID).(int64); ok {
		w = w.Int64("chat_id", v)
	}
	if v, ok := ctx.Value(CtxKeyUserID).(int64); ok {
		w = w.Int64("uid", v)
	}
	return w.Logger()
}
