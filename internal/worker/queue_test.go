package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"

	"github.com/wapuda/vidfetch/internal/jobs"
	"github.com/wapuda/vidfetch/internal/media"
)

func TestRegisterRunsHandler(t *testing.T) {
	f := newFixture(t)
	mux := asynq.NewServeMux()
	Register(mux, f.handler)

	p := f.claimed(t, 50)
	b, err := p.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	if err := mux.ProcessTask(context.Background(), asynq.NewTask(jobs.TaskDeliver, b)); err != nil {
		t.Fatalf("ProcessTask: %v", err)
	}
	if f.router.chatID != 50 {
		t.Errorf("job not delivered, router saw chat %d", f.router.chatID)
	}
}

func TestRegisterFailuresSkipRetry(t *testing.T) {
	f := newFixture(t)
	f.runner.err = media.ErrExtraction
	mux := asynq.NewServeMux()
	Register(mux, f.handler)

	bad := mux.ProcessTask(context.Background(), asynq.NewTask(jobs.TaskDeliver, []byte("{")))
	if !errors.Is(bad, asynq.SkipRetry) {
		t.Errorf("malformed payload err = %v, want SkipRetry", bad)
	}

	b, _ := f.claimed(t, 51).Marshal()
	err := mux.ProcessTask(context.Background(), asynq.NewTask(jobs.TaskDeliver, b))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Errorf("failed job err = %v, want SkipRetry", err)
	}
	if texts := f.bot.texts(); len(texts) != 1 || texts[0] != FailureText {
		t.Errorf("messages = %v", texts)
	}
}
