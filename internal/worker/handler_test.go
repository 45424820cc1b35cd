package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/wapuda/vidfetch/internal/delivery"
	"github.com/wapuda/vidfetch/internal/jobs"
	"github.com/wapuda/vidfetch/internal/media"
	"github.com/wapuda/vidfetch/internal/session"
)

type fakeRunner struct {
	err     error
	panics  bool
	size    int64
	gotReq  media.Request
	dirSeen bool
}

func (f *fakeRunner) Run(ctx context.Context, req media.Request) (*media.Artifact, error) {
	f.gotReq = req
	if _, err := os.Stat(req.Dir); err == nil {
		f.dirSeen = true
	}
	if f.panics {
		panic("boom")
	}
	if f.err != nil {
		return nil, f.err
	}
	p := filepath.Join(req.Dir, "out.mp4")
	if err := os.WriteFile(p, []byte("video"), 0o644); err != nil {
		return nil, err
	}
	return &media.Artifact{Title: req.Title, Path: p, Source: p, Size: f.size}, nil
}

type fakeRouter struct {
	err    error
	chatID int64
	art    *media.Artifact
}

func (f *fakeRouter) Deliver(ctx context.Context, chatID int64, art *media.Artifact) (delivery.Route, error) {
	f.chatID = chatID
	f.art = art
	if f.err != nil {
		return delivery.RouteDirect, f.err
	}
	return delivery.Choose(art.Size, delivery.DefaultLimit), nil
}

type recordingSender struct {
	mu   sync.Mutex
	sent []tgbotapi.Chattable
}

func (r *recordingSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, c)
	return tgbotapi.Message{MessageID: len(r.sent)}, nil
}

func (r *recordingSender) texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, c := range r.sent {
		if m, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, m.Text)
		}
	}
	return out
}

type fixture struct {
	runner   *fakeRunner
	router   *fakeRouter
	bot      *recordingSender
	sessions *session.Manager
	handler  *Handler
	tempDir  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		runner:   &fakeRunner{size: 1234},
		router:   &fakeRouter{},
		bot:      &recordingSender{},
		sessions: session.NewManager(session.NewMemoryStore(0)),
		tempDir:  t.TempDir(),
	}
	f.handler = NewHandler(f.runner, f.router, f.sessions, f.bot, f.tempDir)
	return f
}

// claimed opens and claims a session the way the dispatcher does and returns the job payload.
func (f *fixture) claimed(t *testing.T, chatID int64) jobs.DeliverPayload {
	t.Helper()
	ctx := context.Background()
	s, err := f.sessions.Open(ctx, session.Session{
		ChatID:  chatID,
		URL:     "https://example.com/v/1",
		Title:   "clip",
		Formats: []media.Format{{ID: "18", Ext: "mp4", Height: 360, HasAudio: true}},
	})
	if err != nil {
		t.Fatal(err)
	}
	cs, format, err := f.sessions.Claim(ctx, chatID, s.Token, 0)
	if err != nil {
		t.Fatal(err)
	}
	return jobs.DeliverPayload{
		JobID:  jobs.NewID(),
		ChatID: chatID,
		Token:  cs.Token,
		URL:    cs.URL,
		Title:  cs.Title,
		Format: format,
	}
}

func assertScratchGone(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("scratch left behind: %v", entries)
	}
}

func TestHandleSuccess(t *testing.T) {
	f := newFixture(t)
	p := f.claimed(t, 10)

	res := f.handler.Handle(context.Background(), p)
	if res.Err != nil {
		t.Fatalf("Handle: %v", res.Err)
	}
	if res.Route != delivery.RouteDirect || res.Size != 1234 || res.JobID != p.JobID {
		t.Errorf("result = %+v", res)
	}
	if !f.runner.dirSeen {
		t.Error("pipeline ran without a scratch dir")
	}
	if f.runner.gotReq.Format.ID != "18" || f.runner.gotReq.URL != p.URL {
		t.Errorf("pipeline request = %+v", f.runner.gotReq)
	}
	if f.router.chatID != 10 {
		t.Errorf("delivered to %d", f.router.chatID)
	}
	if got := f.bot.texts(); len(got) != 0 {
		t.Errorf("unexpected messages: %v", got)
	}
	if _, err := f.sessions.Lookup(context.Background(), 10); !errors.Is(err, session.ErrExpired) {
		t.Errorf("session not cleared: %v", err)
	}
	assertScratchGone(t, f.tempDir)
}

func TestHandleFailuresNotifyAndCleanUp(t *testing.T) {
	cases := []struct {
		name  string
		setup func(f *fixture)
		want  error
	}{
		{"extraction", func(f *fixture) { f.runner.err = media.ErrExtraction }, media.ErrExtraction},
		{"trim", func(f *fixture) { f.runner.err = media.ErrTrim }, media.ErrTrim},
		{"delivery", func(f *fixture) { f.router.err = delivery.ErrDelivery }, delivery.ErrDelivery},
		{"panic", func(f *fixture) { f.runner.panics = true }, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			tc.setup(f)
			p := f.claimed(t, 20)

			res := f.handler.Handle(context.Background(), p)
			if res.Err == nil {
				t.Fatal("expected error")
			}
			if tc.want != nil && !errors.Is(res.Err, tc.want) {
				t.Errorf("err = %v, want %v", res.Err, tc.want)
			}
			texts := f.bot.texts()
			if len(texts) != 1 || texts[0] != FailureText {
				t.Errorf("messages = %v, want one generic failure", texts)
			}
			if _, err := f.sessions.Lookup(context.Background(), 20); !errors.Is(err, session.ErrExpired) {
				t.Errorf("session not cleared: %v", err)
			}
			assertScratchGone(t, f.tempDir)
		})
	}
}

func TestHandleKeepsNewerSession(t *testing.T) {
	f := newFixture(t)
	p := f.claimed(t, 30)

	newer, err := f.sessions.Open(context.Background(), session.Session{ChatID: 30, URL: "https://example.com/other"})
	if err != nil {
		t.Fatal(err)
	}

	if res := f.handler.Handle(context.Background(), p); res.Err != nil {
		t.Fatalf("in-flight job affected by new link: %v", res.Err)
	}
	got, err := f.sessions.Lookup(context.Background(), 30)
	if err != nil || got.Token != newer.Token {
		t.Fatalf("newer session removed: %+v, %v", got, err)
	}
}
