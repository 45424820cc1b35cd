package worker

import (
	"context"
	"fmt"
	"os"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/wapuda/vidfetch/internal/delivery"
	"github.com/wapuda/vidfetch/internal/jobs"
	logx "github.com/wapuda/vidfetch/internal/logs"
	"github.com/wapuda/vidfetch/internal/media"
	"github.com/wapuda/vidfetch/internal/session"
)

// FailureText is the only thing a user sees when a job fails.
const FailureText = "❌ Failed to process this video. Please try again later."

// Runner is the media pipeline.
type Runner interface {
	Run(ctx context.Context, req media.Request) (*media.Artifact, error)
}

// Deliverer is the delivery router.
type Deliverer interface {
	Deliver(ctx context.Context, chatID int64, art *media.Artifact) (delivery.Route, error)
}

// Result is the outcome of one job.
type Result struct {
	JobID  string
	ChatID int64
	Route  delivery.Route
	Size   int64
	Err    error
}

// Handler runs one deliver job end to end.
type Handler struct {
	pipeline Runner
	router   Deliverer
	sessions *session.Manager
	bot      delivery.Sender
	tempDir  string
}

// NewHandler wires a job handler. tempDir "" uses the OS temp dir.
func NewHandler(pipeline Runner, router Deliverer, sessions *session.Manager, bot delivery.Sender, tempDir string) *Handler {
	return &Handler{pipeline: pipeline, router: router, sessions: sessions, bot: bot, tempDir: tempDir}
}

// Handle downloads, processes and delivers p. Every failure is logged and turned
// into FailureText for the chat; the scratch directory and the session entry are
// released on every path.
func (h *Handler) Handle(ctx context.Context, p jobs.DeliverPayload) (res Result) {
	ctx = logx.WithJob(ctx, p.JobID, p.ChatID)
	l := logx.FromCtx(ctx)
	res = Result{JobID: p.JobID, ChatID: p.ChatID}

	defer func() {
		if removed, err := h.sessions.Release(context.WithoutCancel(ctx), p.ChatID, p.Token); err != nil {
			l.Error().Err(err).Msg("release session")
		} else if !removed {
			l.Debug().Msg("session already replaced or gone")
		}
	}()

	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("panic: %v", r)
		}
		if res.Err != nil {
			l.Error().Err(res.Err).Str("url", p.URL).Str("format", p.Format.ID).Msg("job failed")
			if _, err := h.bot.Send(tgbotapi.NewMessage(p.ChatID, FailureText)); err != nil {
				l.Error().Err(err).Msg("send failure notice")
			}
		}
	}()

	dir, err := os.MkdirTemp(h.tempDir, "job-"+p.JobID+"-")
	if err != nil {
		res.Err = fmt.Errorf("create scratch dir: %w", err)
		return res
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			l.Warn().Err(err).Str("dir", dir).Msg("remove scratch dir")
		}
	}()

	l.Info().Str("url", p.URL).Str("format", p.Format.ID).Msg("job started")

	art, err := h.pipeline.Run(ctx, media.Request{
		URL:    p.URL,
		Title:  p.Title,
		Format: p.Format,
		Trim:   p.Trim,
		Dir:    dir,
	})
	if err != nil {
		res.Err = err
		return res
	}
	res.Size = art.Size

	route, err := h.router.Deliver(ctx, p.ChatID, art)
	res.Route = route
	if err != nil {
		res.Err = err
		return res
	}

	l.Info().Str("route", string(route)).Msg("job finished")
	return res
}
