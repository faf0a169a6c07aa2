package gmail

import (
	"encoding/json"
	"sort"
)

// LabelID identifies a Gmail label. System labels use upper-case names.
type LabelID string

// System labels used for message classification.
const (
	LabelInbox     LabelID = "INBOX"
	LabelImportant LabelID = "IMPORTANT"
	LabelUnread    LabelID = "UNREAD"
	LabelTrash     LabelID = "TRASH"
	LabelSent      LabelID = "SENT"
	LabelStarred   LabelID = "STARRED"
	LabelSpam      LabelID = "SPAM"
	LabelDraft     LabelID = "DRAFT"
)

// LabelSet is the set of labels on a message. Only membership matters.
type LabelSet map[LabelID]struct{}

// NewLabelSet builds a set from label IDs as returned by the API.
func NewLabelSet(ids ...string) LabelSet {
	s := make(LabelSet, len(ids))
	for _, id := range ids {
		s[LabelID(id)] = struct{}{}
	}
	return s
}

// Has reports whether id is in the set. A nil set has no members.
func (s LabelSet) Has(id LabelID) bool {
	_, ok := s[id]
	return ok
}

// Add inserts ids into the set.
func (s LabelSet) Add(ids ...LabelID) {
	for _, id := range ids {
		s[id] = struct{}{}
	}
}

// Remove deletes ids from the set.
func (s LabelSet) Remove(ids ...LabelID) {
	for _, id := range ids {
		delete(s, id)
	}
}

// Slice returns the labels sorted by ID.
func (s LabelSet) Slice() []LabelID {
	out := make([]LabelID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// MarshalJSON encodes the set as a sorted array of label IDs.
func (s LabelSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Slice())
}

// UnmarshalJSON decodes an array of label IDs.
func (s *LabelSet) UnmarshalJSON(data []byte) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*s = NewLabelSet(ids...)
	return nil
}

func labelStrings(ids []LabelID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
