package gmail

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLabelSet(t *testing.T) {
	s := NewLabelSet("INBOX", "UNREAD", "INBOX")
	if len(s) != 2 {
		t.Errorf("len = %d, want 2", len(s))
	}

	s.Add(LabelImportant)
	s.Remove(LabelUnread, LabelSpam)

	if diff := cmp.Diff([]LabelID{LabelImportant, LabelInbox}, s.Slice()); diff != "" {
		t.Errorf("Slice() mismatch (-want +got):\n%s", diff)
	}

	var nilSet LabelSet
	if nilSet.Has(LabelInbox) {
		t.Error("nil set reports membership")
	}
}

func TestLabelSet_JSON(t *testing.T) {
	var msg Message
	if err := json.Unmarshal([]byte(`{"id":"x","labelIds":["UNREAD","IMPORTANT"]}`), &msg); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !msg.IsImportant() || !msg.IsUnread() {
		t.Errorf("labels = %v", msg.Labels.Slice())
	}

	b, err := json.Marshal(msg.Labels)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if got, want := string(b), `["IMPORTANT","UNREAD"]`; got != want {
		t.Errorf("Marshal = %s, want %s", got, want)
	}
}
