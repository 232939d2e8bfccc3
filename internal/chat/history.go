package chat

import (
	"container/list"
	"context"
	"sync"

	"cleanse/internal/domain"
)

// DefaultMaxChannels bounds how many channels keep history at once.
const DefaultMaxChannels = 1024

type channelHistory struct {
	id    string
	turns []domain.Turn
}

// History keeps the most recent turns of every channel in memory. When more
// than maxChannels channels have history, the least recently used one is
// forgotten.
type History struct {
	mu          sync.Mutex
	limit       int
	maxChannels int
	order       *list.List
	channels    map[string]*list.Element
}

// NewHistory keeps at most exchanges question/answer pairs per channel.
func NewHistory(exchanges int) *History {
	return newHistory(exchanges, DefaultMaxChannels)
}

func newHistory(exchanges, maxChannels int) *History {
	return &History{
		limit:       exchanges * 2,
		maxChannels: maxChannels,
		order:       list.New(),
		channels:    make(map[string]*list.Element),
	}
}

// Get returns a copy of the channel's turns, oldest first.
func (h *History) Get(channelID string) []domain.Turn {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.channels[channelID]
	if !ok {
		return []domain.Turn{}
	}
	h.order.MoveToFront(e)
	turns := e.Value.(*channelHistory).turns
	out := make([]domain.Turn, len(turns))
	copy(out, turns)
	return out
}

// Append adds turns and drops the oldest ones beyond the window.
func (h *History) Append(channelID string, turns ...domain.Turn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.channels[channelID]
	if !ok {
		e = h.order.PushFront(&channelHistory{id: channelID})
		h.channels[channelID] = e
		for h.order.Len() > h.maxChannels {
			oldest := h.order.Back()
			h.order.Remove(oldest)
			delete(h.channels, oldest.Value.(*channelHistory).id)
		}
	}
	h.order.MoveToFront(e)
	ch := e.Value.(*channelHistory)
	all := append(ch.turns, turns...)
	if len(all) > h.limit {
		all = append([]domain.Turn(nil), all[len(all)-h.limit:]...)
	}
	ch.turns = all
}

type lockSlot struct {
	ch   chan struct{}
	refs int
}

// channelLocks serialises turns per channel. Each slot is a one-element
// semaphore so waiting can be abandoned when the context ends. A slot lives
// only while some turn holds or waits for it.
type channelLocks struct {
	mu    sync.Mutex
	slots map[string]*lockSlot
}

func newChannelLocks() *channelLocks {
	return &channelLocks{slots: make(map[string]*lockSlot)}
}

func (l *channelLocks) ref(channelID string) *lockSlot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[channelID]
	if !ok {
		s = &lockSlot{ch: make(chan struct{}, 1)}
		l.slots[channelID] = s
	}
	s.refs++
	return s
}

func (l *channelLocks) unref(channelID string, s *lockSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, channelID)
	}
}

func (l *channelLocks) acquire(ctx context.Context, channelID string) (func(), error) {
	s := l.ref(channelID)
	select {
	case s.ch <- struct{}{}:
		return func() {
			<-s.ch
			l.unref(channelID, s)
		}, nil
	case <-ctx.Done():
		l.unref(channelID, s)
		return nil, ctx.Err()
	}
}

func (l *channelLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
