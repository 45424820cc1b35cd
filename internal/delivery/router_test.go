package delivery

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/wapuda/vidfetch/internal/media"
)

type fakeSender struct {
	sent   []tgbotapi.Chattable
	nextID int
	failAt int // 1-based call index that fails, 0 = never
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	if f.failAt == len(f.sent) {
		return tgbotapi.Message{}, errors.New("Bad Request: file too big")
	}
	f.nextID++
	return tgbotapi.Message{MessageID: 1000 + f.nextID}, nil
}

const relay int64 = -1001234567890

func artifact(size int64) *media.Artifact {
	return &media.Artifact{
		Title:     "Clip",
		Path:      "/tmp/x/Clip.mp4",
		Size:      size,
		Duration:  42 * time.Second,
		Thumbnail: &media.Thumbnail{Path: "/tmp/x/thumb.jpg"},
	}
}

func TestChooseBoundary(t *testing.T) {
	tests := []struct {
		size int64
		want Route
	}{
		{0, RouteDirect},
		{DefaultLimit - 1, RouteDirect},
		{DefaultLimit, RouteDirect},
		{DefaultLimit + 1, RouteRelay},
		{2 * DefaultLimit, RouteRelay},
	}
	for _, tt := range tests {
		if got := Choose(tt.size, DefaultLimit); got != tt.want {
			t.Errorf("Choose(%d) = %s, want %s", tt.size, got, tt.want)
		}
	}
}

func TestDeliverDirectAtLimit(t *testing.T) {
	bot := &fakeSender{}
	r := NewRouter(bot, relay, 0)

	route, err := r.Deliver(context.Background(), 55, artifact(50*1024*1024))
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if route != RouteDirect {
		t.Fatalf("route = %s, want direct", route)
	}
	if len(bot.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(bot.sent))
	}
	v, ok := bot.sent[0].(tgbotapi.VideoConfig)
	if !ok {
		t.Fatalf("sent %T, want VideoConfig", bot.sent[0])
	}
	if v.ChatID != 55 {
		t.Errorf("chat = %d", v.ChatID)
	}
	if v.Thumb == nil {
		t.Error("thumbnail not attached")
	}
	if !v.SupportsStreaming || v.Duration != 42 {
		t.Errorf("video flags = streaming %v duration %d", v.SupportsStreaming, v.Duration)
	}
	if v.Caption != "Clip\nDuration: 42s" {
		t.Errorf("caption = %q", v.Caption)
	}
}

func TestDeliverDirectWithoutThumbnail(t *testing.T) {
	bot := &fakeSender{}
	art := artifact(1024)
	art.Thumbnail = nil
	art.ThumbErr = media.ErrThumbnail

	if _, err := NewRouter(bot, relay, 0).Deliver(context.Background(), 55, art); err != nil {
		t.Fatal(err)
	}
	v := bot.sent[0].(tgbotapi.VideoConfig)
	if v.Thumb != nil {
		t.Error("thumbnail attached although none was produced")
	}
}

func TestDeliverRelayAboveLimit(t *testing.T) {
	bot := &fakeSender{}
	r := NewRouter(bot, relay, 0)

	route, err := r.Deliver(context.Background(), 55, artifact(50*1024*1024+1))
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if route != RouteRelay {
		t.Fatalf("route = %s, want relay", route)
	}
	if len(bot.sent) != 2 {
		t.Fatalf("sent %d messages, want 2", len(bot.sent))
	}
	v, ok := bot.sent[0].(tgbotapi.VideoConfig)
	if !ok || v.ChatID != relay {
		t.Fatalf("first send = %T to %d, want video to relay", bot.sent[0], v.ChatID)
	}
	m, ok := bot.sent[1].(tgbotapi.MessageConfig)
	if !ok || m.ChatID != 55 {
		t.Fatalf("second send = %T, want text to requester", bot.sent[1])
	}
	if !strings.Contains(m.Text, "https://t.me/c/1234567890/1001") {
		t.Errorf("link missing from %q", m.Text)
	}
	if !strings.Contains(m.Text, "File too big (50 MiB)") {
		t.Errorf("size not in MiB in %q", m.Text)
	}
	for _, c := range bot.sent {
		if v, ok := c.(tgbotapi.VideoConfig); ok && v.ChatID == 55 {
			t.Error("raw file sent to requester on relay route")
		}
	}
}

func TestDeliverErrors(t *testing.T) {
	for _, tc := range []struct {
		name   string
		size   int64
		failAt int
	}{
		{"direct send", 10, 1},
		{"relay upload", DefaultLimit + 10, 1},
		{"relay link", DefaultLimit + 10, 2},
	} {
		t.Run(tc.name, func(t *testing.T) {
			bot := &fakeSender{failAt: tc.failAt}
			_, err := NewRouter(bot, relay, 0).Deliver(context.Background(), 1, artifact(tc.size))
			if !errors.Is(err, ErrDelivery) {
				t.Fatalf("err = %v, want ErrDelivery", err)
			}
			if len(bot.sent) != tc.failAt {
				t.Errorf("calls = %d, no retry expected", len(bot.sent))
			}
		})
	}
}

func TestRelayLink(t *testing.T) {
	tests := []struct {
		channel int64
		msg     int
		want    string
	}{
		{-1001234567890, 5, "https://t.me/c/1234567890/5"},
		{-987654, 12, "https://t.me/c/987654/12"},
	}
	for _, tt := range tests {
		if got := RelayLink(tt.channel, tt.msg); got != tt.want {
			t.Errorf("RelayLink(%d, %d) = %s, want %s", tt.channel, tt.msg, got, tt.want)
		}
	}
}

func TestCaption(t *testing.T) {
	if got := Caption(&media.Artifact{Title: "No duration"}); got != "No duration" {
		t.Errorf("caption = %q", got)
	}
	long := &media.Artifact{Title: strings.Repeat("a", 2000), Duration: 5 * time.Second}
	got := Caption(long)
	if n := len([]rune(got)); n > maxCaption {
		t.Errorf("caption length %d over limit", n)
	}
	if !strings.HasSuffix(got, "Duration: 5s") {
		t.Errorf("duration dropped: %q", got[len(got)-20:])
	}
}
