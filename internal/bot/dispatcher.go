package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/wapuda/vidfetch/internal/jobs"
	logx "github.com/wapuda/vidfetch/internal/logs"
	"github.com/wapuda/vidfetch/internal/media"
	"github.com/wapuda/vidfetch/internal/session"
)

const (
	startText = "📥 *Video Downloader Bot*\n\n" +
		"Send a video link to get a list of qualities.\n" +
		"Add a window after the link to trim, e.g. `https://… 0:10-0:45`.\n\n" +
		"Commands:\n" +
		"• /cancel → Drop the current link\n" +
		"• /upgrade → Become premium"

	expiredText  = "❌ Session expired. Send the link again."
	noLinkText   = "Send a video link (http:// or https://)."
	lookupFailed = "❌ Couldn't read that link. Check the URL and try again."
	noFormats    = "❌ No downloadable mp4 formats found for this link."
	queueFailed  = "❌ Too many downloads right now. Try again in a minute."
)

// Client is the part of *tgbotapi.BotAPI the dispatcher uses.
type Client interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Cataloger answers metadata-only format queries.
type Cataloger interface {
	Catalog(ctx context.Context, url string) (*media.Catalog, error)
}

// Enqueuer accepts deliver jobs without waiting for them.
type Enqueuer interface {
	Enqueue(ctx context.Context, p jobs.DeliverPayload) error
}

// PremiumStore reads and writes the per-user premium flag.
type PremiumStore interface {
	IsPremium(ctx context.Context, userID int64) (bool, error)
	SetPremium(ctx context.Context, userID int64, premium bool) error
}

type Options struct {
	AdminID       int64
	MaxFormats    int
	FreeMaxHeight int           // 0 = no cap for free users
	MetaTimeout   time.Duration // bound on the blocking format lookup
}

// Dispatcher turns Telegram updates into sessions and jobs.
type Dispatcher struct {
	bot      Client
	catalog  Cataloger
	sessions *session.Manager
	premium  PremiumStore
	queue    Enqueuer
	opt      Options
}

func New(bot Client, catalog Cataloger, sessions *session.Manager, premium PremiumStore, queue Enqueuer, opt Options) *Dispatcher {
	if opt.MaxFormats <= 0 || opt.MaxFormats > 5 {
		opt.MaxFormats = 5
	}
	if opt.MetaTimeout <= 0 {
		opt.MetaTimeout = 90 * time.Second
	}
	return &Dispatcher{
		bot:      bot,
		catalog:  catalog,
		sessions: sessions,
		premium:  premium,
		queue:    queue,
		opt:      opt,
	}
}

// HandleUpdate processes one update. It only blocks for the metadata lookup.
func (d *Dispatcher) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	switch {
	case upd.Message != nil:
		d.onMessage(ctx, upd.Message)
	case upd.CallbackQuery != nil:
		d.onCallback(ctx, upd.CallbackQuery)
	}
}

// --- Handlers ---

func (d *Dispatcher) onMessage(ctx context.Context, m *tgbotapi.Message) {
	if m.Chat == nil || m.From == nil {
		return
	}
	ctx = context.WithValue(ctx, logx.CtxKeyChatID, m.Chat.ID)
	ctx = context.WithValue(ctx, logx.CtxKeyUserID, m.From.ID)
	l := logx.FromCtx(ctx)
	l.Info().Msg("message received")

	if m.IsCommand() {
		switch m.Command() {
		case "start", "help":
			text := startText
			if d.opt.FreeMaxHeight > 0 {
				text += fmt.Sprintf("\n\nFree users limited to %dp.", d.opt.FreeMaxHeight)
			}
			msg := tgbotapi.NewMessage(m.Chat.ID, text)
			msg.ParseMode = tgbotapi.ModeMarkdown
			d.send(ctx, msg)
		case "cancel":
			if err := d.sessions.Drop(ctx, m.Chat.ID); err != nil {
				l.Error().Err(err).Msg("drop session")
			}
			d.reply(ctx, m.Chat.ID, "Session canceled. Send a link to start again.")
		case "upgrade":
			d.onUpgrade(ctx, m)
		case "grant", "revoke":
			d.onGrant(ctx, m, m.Command() == "grant")
		default:
			d.reply(ctx, m.Chat.ID, "Unknown command. Send a video link to start.")
		}
		return
	}

	link, ok, err := parseLink(m.Text)
	if !ok {
		d.reply(ctx, m.Chat.ID, noLinkText)
		return
	}
	if err != nil {
		d.reply(ctx, m.Chat.ID, "❌ Couldn't read the trim window. Use start-end, e.g. 10-25 or 1:05-1:40.")
		return
	}
	d.onLink(ctx, m, link)
}

func (d *Dispatcher) onLink(ctx context.Context, m *tgbotapi.Message, link Link) {
	l := logx.FromCtx(ctx)

	lookupCtx, cancel := context.WithTimeout(ctx, d.opt.MetaTimeout)
	cat, err := d.catalog.Catalog(lookupCtx, link.URL)
	cancel()
	if err != nil {
		l.Warn().Err(err).Str("url", link.URL).Msg("format lookup failed")
		d.reply(ctx, m.Chat.ID, lookupFailed)
		return
	}

	maxHeight := d.opt.FreeMaxHeight
	if maxHeight > 0 && d.isPremium(ctx, m.From.ID) {
		maxHeight = 0
	}
	formats := media.SurfaceFormats(cat.Formats, d.opt.MaxFormats, maxHeight)
	if len(formats) == 0 {
		text := noFormats
		if maxHeight > 0 && len(media.SurfaceFormats(cat.Formats, 1, 0)) > 0 {
			text = fmt.Sprintf("❌ No formats up to %dp for this link. /upgrade for higher qualities.", maxHeight)
		}
		d.reply(ctx, m.Chat.ID, text)
		return
	}

	title := strings.TrimSpace(cat.Title)
	if title == "" {
		title = "video"
	}
	s, err := d.sessions.Open(ctx, session.Session{
		ChatID:  m.Chat.ID,
		UserID:  m.From.ID,
		URL:     link.URL,
		Title:   title,
		Formats: formats,
		Trim:    link.Trim,
	})
	if err != nil {
		l.Error().Err(err).Msg("store session")
		d.reply(ctx, m.Chat.ID, "Internal error (session). Try again.")
		return
	}

	l.Info().Int("formats", len(formats)).Str("url", link.URL).Msg("formats presented")
	d.askFormat(ctx, m.Chat.ID, s)
}

func (d *Dispatcher) askFormat(ctx context.Context, chatID int64, s *session.Session) {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(s.Formats))
	for i, f := range s.Formats {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(media.Label(f), callbackData(s.Token, i)),
		))
	}
	text := "🎬 " + s.Title + "\nChoose quality:"
	if s.Trim != nil {
		text += "\n✂️ Trim: " + s.Trim.String() + "s"
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	d.send(ctx, msg)
}

func (d *Dispatcher) onCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	if cq.Message == nil || cq.Message.Chat == nil || cq.From == nil {
		d.answerCB(ctx, cq, "")
		return
	}
	chatID := cq.Message.Chat.ID
	ctx = context.WithValue(ctx, logx.CtxKeyChatID, chatID)
	ctx = context.WithValue(ctx, logx.CtxKeyUserID, cq.From.ID)
	l := logx.FromCtx(ctx)

	token, index, err := parseCallback(cq.Data)
	if err != nil {
		d.answerCB(ctx, cq, "")
		return
	}

	s, format, err := d.sessions.Claim(ctx, chatID, token, index)
	switch {
	case errors.Is(err, session.ErrExpired):
		d.answerCB(ctx, cq, "Session expired")
		d.reply(ctx, chatID, expiredText)
		return
	case errors.Is(err, session.ErrBusy):
		d.answerCB(ctx, cq, "Already processing ⏳")
		return
	case errors.Is(err, session.ErrBadChoice):
		d.answerCB(ctx, cq, "Pick one of the listed options.")
		return
	case err != nil:
		l.Error().Err(err).Msg("claim session")
		d.answerCB(ctx, cq, "Internal error")
		return
	}

	p := jobs.DeliverPayload{
		JobID:  jobs.NewID(),
		ChatID: chatID,
		UserID: cq.From.ID,
		Token:  s.Token,
		URL:    s.URL,
		Title:  s.Title,
		Format: format,
		Trim:   s.Trim,
	}
	if err := d.queue.Enqueue(ctx, p); err != nil {
		l.Error().Err(err).Msg("enqueue job failed")
		if _, rerr := d.sessions.Release(ctx, chatID, s.Token); rerr != nil {
			l.Error().Err(rerr).Msg("release session")
		}
		d.answerCB(ctx, cq, "Queue error")
		d.reply(ctx, chatID, queueFailed)
		return
	}

	l.Info().Str("job", p.JobID).Str("format", format.ID).Msg("format selected; job queued")
	d.answerCB(ctx, cq, "Selected: "+media.Label(format))
	d.send(ctx, tgbotapi.NewEditMessageText(chatID, cq.Message.MessageID,
		fmt.Sprintf("⏳ Downloading %s\n%s", s.Title, media.Label(format))))
}

func (d *Dispatcher) onUpgrade(ctx context.Context, m *tgbotapi.Message) {
	if d.isPremium(ctx, m.From.ID) {
		d.reply(ctx, m.Chat.ID, "⭐ You are already premium. All qualities are unlocked.")
		return
	}
	d.reply(ctx, m.Chat.ID, "⭐ Premium unlocks every quality. Your request was sent to the admin; you'll be able to pick HD formats once approved.")
	if d.opt.AdminID == 0 {
		return
	}
	who := strconv.FormatInt(m.From.ID, 10)
	if m.From.UserName != "" {
		who += " (@" + m.From.UserName + ")"
	}
	d.reply(ctx, d.opt.AdminID, fmt.Sprintf("Premium request from %s.\nApprove with /grant %d", who, m.From.ID))
}

func (d *Dispatcher) onGrant(ctx context.Context, m *tgbotapi.Message, grant bool) {
	if d.opt.AdminID == 0 || m.From.ID != d.opt.AdminID {
		d.reply(ctx, m.Chat.ID, "Unknown command. Send a video link to start.")
		return
	}
	userID, err := strconv.ParseInt(strings.TrimSpace(m.CommandArguments()), 10, 64)
	if err != nil {
		d.reply(ctx, m.Chat.ID, fmt.Sprintf("Usage: /%s <user_id>", m.Command()))
		return
	}
	if err := d.premium.SetPremium(ctx, userID, grant); err != nil {
		logx.FromCtx(ctx).Error().Err(err).Int64("target", userID).Msg("set premium")
		d.reply(ctx, m.Chat.ID, "Internal error (premium).")
		return
	}
	if grant {
		d.reply(ctx, m.Chat.ID, fmt.Sprintf("✅ %d is premium now.", userID))
		d.reply(ctx, userID, "⭐ Premium activated. Send a link to see all qualities.")
		return
	}
	d.reply(ctx, m.Chat.ID, fmt.Sprintf("✅ Premium removed for %d.", userID))
}

// --- Helpers ---

func (d *Dispatcher) isPremium(ctx context.Context, userID int64) bool {
	if d.premium == nil {
		return false
	}
	ok, err := d.premium.IsPremium(ctx, userID)
	if err != nil {
		logx.FromCtx(ctx).Warn().Err(err).Msg("premium lookup failed; treating as free")
		return false
	}
	return ok
}

func (d *Dispatcher) reply(ctx context.Context, chatID int64, text string) {
	d.send(ctx, tgbotapi.NewMessage(chatID, text))
}

func (d *Dispatcher) send(ctx context.Context, c tgbotapi.Chattable) {
	if _, err := d.bot.Send(c); err != nil {
		logx.FromCtx(ctx).Warn().Err(err).Msg("telegram send failed")
	}
}

func (d *Dispatcher) answerCB(ctx context.Context, cq *tgbotapi.CallbackQuery, text string) {
	if _, err := d.bot.Request(tgbotapi.NewCallback(cq.ID, text)); err != nil {
		logx.FromCtx(ctx).Debug().Err(err).Msg("answer callback failed")
	}
}
