package jobs

import (
	"testing"

	"github.com/wapuda/vidfetch/internal/media"
)

func TestDeliverPayloadCarriesTrim(t *testing.T) {
	in := DeliverPayload{
		JobID:  NewID(),
		ChatID: -1001,
		Token:  "tok",
		URL:    "https://example.com/v",
		Format: media.Format{ID: "18", Ext: "mp4", Height: 360},
		Trim:   &media.TrimWindow{Start: 1.5, End: 9},
	}
	b, err := in.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	out, err := UnmarshalDeliver(b)
	if err != nil {
		t.Fatal(err)
	}
	if out.Trim == nil || *out.Trim != *in.Trim || out.Format.ID != "18" || out.Token != "tok" {
		t.Fatalf("decoded = %+v", out)
	}
}

func TestNewIDSortable(t *testing.T) {
	a, b := NewID(), NewID()
	if len(a) != 26 || len(b) != 26 {
		t.Fatalf("ids %q %q are not ULIDs", a, b)
	}
	if a == b {
		t.Fatalf("duplicate id %q", a)
	}
}

func TestUnmarshalDeliverRejectsGarbage(t *testing.T) {
	if _, err := UnmarshalDeliver([]byte("{")); err == nil {
		t.Fatal("expected error")
	}
}
