package mailbox

import (
	"time"

	"github.com/mailroom/mailroom/internal/gmail"
)

// DefaultTTL is how long cached messages and lists stay fresh.
const DefaultTTL = 60 * time.Second

// listKey identifies one page of a listing.
type listKey struct {
	Label    gmail.LabelID
	Search   string
	Page     int
	PageSize int
}

type messageEntry struct {
	msg *gmail.Message
	at  time.Time
}

type listEntry struct {
	key  listKey
	msgs []*gmail.Message
	at   time.Time
}

// cache holds fetched messages by ID plus the most recent listing. Entries
// are fresh while now-at < ttl and are evicted lazily on read. The owning
// Service's mutex guards it.
type cache struct {
	ttl      time.Duration
	clock    Clock
	messages map[string]messageEntry
	list     *listEntry
}

func newCache(ttl time.Duration, clock Clock) *cache {
	return &cache{
		ttl:      ttl,
		clock:    clock,
		messages: make(map[string]messageEntry),
	}
}

func (c *cache) fresh(at time.Time) bool {
	return c.clock.Now().Sub(at) < c.ttl
}

func (c *cache) message(id string) (*gmail.Message, bool) {
	e, ok := c.messages[id]
	if !ok {
		return nil, false
	}
	if !c.fresh(e.at) {
		delete(c.messages, id)
		return nil, false
	}
	return e.msg, true
}

func (c *cache) putMessage(msg *gmail.Message) {
	c.messages[msg.ID] = messageEntry{msg: msg, at: c.clock.Now()}
}

func (c *cache) listing(key listKey) ([]*gmail.Message, bool) {
	if c.list == nil || c.list.key != key {
		return nil, false
	}
	if !c.fresh(c.list.at) {
		c.list = nil
		return nil, false
	}
	return c.list.msgs, true
}

// putListing replaces the listing slot and refreshes every listed message.
func (c *cache) putListing(key listKey, msgs []*gmail.Message) {
	now := c.clock.Now()
	c.list = &listEntry{key: key, msgs: msgs, at: now}
	for _, m := range msgs {
		c.messages[m.ID] = messageEntry{msg: m, at: now}
	}
}

// invalidate drops one message and the listing that may contain it.
func (c *cache) invalidate(id string) {
	delete(c.messages, id)
	c.list = nil
}

func (c *cache) clear() {
	clear(c.messages)
	c.list = nil
}

// size reports the number of message entries, fresh or not.
func (c *cache) size() int {
	return len(c.messages)
}
