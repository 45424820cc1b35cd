package delivery

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	logx "github.com/wapuda/vidfetch/internal/logs"
	"github.com/wapuda/vidfetch/internal/media"
)

// ErrDelivery wraps any failed outbound Telegram call.
var ErrDelivery = errors.New("delivery failed")

// DefaultLimit is the largest file sent straight to the requesting chat.
const DefaultLimit int64 = 50 * 1024 * 1024

const maxCaption = 1024

// Route is the delivery path taken for an artifact.
type Route string

const (
	RouteDirect Route = "direct"
	RouteRelay  Route = "relay"
)

// Sender is the part of *tgbotapi.BotAPI the router needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Router sends processed videos either to the user or through the relay channel.
type Router struct {
	bot     Sender
	relayID int64
	limit   int64
}

// NewRouter creates a router. limit <= 0 uses DefaultLimit.
func NewRouter(bot Sender, relayChatID, limit int64) *Router {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Router{bot: bot, relayID: relayChatID, limit: limit}
}

// Choose picks the route for a file of size bytes. The limit itself still goes direct.
func Choose(size, limit int64) Route {
	if size <= limit {
		return RouteDirect
	}
	return RouteRelay
}

// Deliver sends art for chatID and returns the route used. Nothing is retried.
func (r *Router) Deliver(ctx context.Context, chatID int64, art *media.Artifact) (Route, error) {
	l := logx.FromCtx(ctx)
	route := Choose(art.Size, r.limit)

	switch route {
	case RouteDirect:
		v := r.video(chatID, art)
		if art.HasThumbnail() {
			v.Thumb = tgbotapi.FilePath(art.Thumbnail.Path)
		}
		if _, err := r.bot.Send(v); err != nil {
			return route, fmt.Errorf("%w: send video: %w", ErrDelivery, err)
		}

	case RouteRelay:
		posted, err := r.bot.Send(r.video(r.relayID, art))
		if err != nil {
			return route, fmt.Errorf("%w: relay upload: %w", ErrDelivery, err)
		}
		link := RelayLink(r.relayID, posted.MessageID)
		text := fmt.Sprintf("⚠️ File too big (%s).\n📺 Watch/Download here:\n%s", media.MiB(art.Size), link)
		if _, err := r.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
			return route, fmt.Errorf("%w: send link: %w", ErrDelivery, err)
		}
		l.Info().Int("relay_msg", posted.MessageID).Msg("relayed through channel")
	}

	l.Info().Str("route", string(route)).Int64("bytes", art.Size).Msg("delivered")
	return route, nil
}

func (r *Router) video(chatID int64, art *media.Artifact) tgbotapi.VideoConfig {
	v := tgbotapi.NewVideo(chatID, tgbotapi.FilePath(art.Path))
	v.Caption = Caption(art)
	v.SupportsStreaming = true
	if art.Duration > 0 {
		v.Duration = int(art.Duration.Seconds())
	}
	return v
}

// Caption is the title plus the duration when known, within Telegram's caption limit.
func Caption(art *media.Artifact) string {
	title := strings.TrimSpace(art.Title)
	var suffix string
	if art.Duration > 0 {
		suffix = fmt.Sprintf("\nDuration: %ds", int(art.Duration.Seconds()))
	}
	if room := maxCaption - len([]rune(suffix)); len([]rune(title)) > room {
		title = string([]rune(title)[:room-1]) + "…"
	}
	return title + suffix
}

// RelayLink builds the t.me deep link for a message in a private channel.
// Channel ids look like -100XXXXXXXXXX; the link uses the part after -100.
func RelayLink(channelID int64, messageID int) string {
	id := strconv.FormatInt(channelID, 10)
	if strings.HasPrefix(id, "-100") {
		id = id[4:]
	} else {
		id = strings.TrimPrefix(id, "-")
	}
	return fmt.Sprintf("https://t.me/c/%s/%d", id, messageID)
}
