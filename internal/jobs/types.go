package jobs

import (
	"encoding/json"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/wapuda/vidfetch/internal/media"
)

const (
	TaskDeliver = "video:deliver"
)

// DeliverPayload is the worker's own copy of what it needs from a claimed session.
type DeliverPayload struct {
	JobID  string            `json:"job_id"`
	ChatID int64             `json:"chat_id"`
	UserID int64             `json:"user_id"`
	Token  string            `json:"token"` // session token, used to release only our own session
	URL    string            `json:"url"`
	Title  string            `json:"title"`
	Format media.Format      `json:"format"`
	Trim   *media.TrimWindow `json:"trim,omitempty"`
}

func (p DeliverPayload) Marshal() ([]byte, error) { return json.Marshal(p) }

func UnmarshalDeliver(b []byte) (DeliverPayload, error) {
	var p DeliverPayload
	err := json.Unmarshal(b, &p)
	return p, err
}

// NewID returns a sortable job id.
func NewID() string {
	t := time.Now()
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
