package store

import (
	"sync"

	"github.com/tbourn/chatverse/internal/domain"
)

// FeedState is a point-in-time copy of the notification store.
type FeedState struct {
	Notifications []domain.Notification `json:"notifications"`
	UnreadCount   int                   `json:"unread_count"`
	PanelOpen     bool                  `json:"panel_open"`
}

// NotificationStore owns the feed (most recent first), the unread counter and
// the panel visibility flag. The counter is kept in step with the feed inside
// every mutation; it is never recomputed by readers.
type NotificationStore struct {
	mu        sync.RWMutex
	items     []domain.Notification
	unread    int
	panelOpen bool
	events    *Broker
}

// NewNotificationStore returns an empty, closed feed.
func NewNotificationStore(events *Broker) *NotificationStore {
	return &NotificationStore{events: events}
}

// Push inserts n at the head of the feed.
func (st *NotificationStore) Push(n domain.Notification) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.items = append(st.items, domain.Notification{})
	copy(st.items[1:], st.items)
	st.items[0] = n
	if !n.Read {
		st.unread++
	}
	st.publish()
}

// MarkRead marks the notification with the given id as read. It reports
// whether anything changed; unknown ids and already-read entries are no-ops.
func (st *NotificationStore) MarkRead(id string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	for i := range st.items {
		if st.items[i].ID != id {
			continue
		}
		if st.items[i].Read {
			return false
		}
		st.items[i].Read = true
		st.unread = max(0, st.unread-1)
		st.publish()
		return true
	}
	return false
}

// MarkAllRead marks every entry read and zeroes the counter in one step.
func (st *NotificationStore) MarkAllRead() {
	st.mu.Lock()
	defer st.mu.Unlock()
	for i := range st.items {
		st.items[i].Read = true
	}
	st.unread = 0
	st.publish()
}

// Clear empties the feed.
func (st *NotificationStore) Clear() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.items = nil
	st.unread = 0
	st.publish()
}

// TogglePanel flips panel visibility and returns the new value.
func (st *NotificationStore) TogglePanel() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.panelOpen = !st.panelOpen
	st.publish()
	return st.panelOpen
}

// SetPanelVisible sets panel visibility. Read state is unaffected.
func (st *NotificationStore) SetPanelVisible(open bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.panelOpen = open
	st.publish()
}

// UnreadCount returns the number of unread entries.
func (st *NotificationStore) UnreadCount() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.unread
}

// Snapshot returns a consistent copy of the feed, counter and flag.
func (st *NotificationStore) Snapshot() FeedState {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.snapshot()
}

func (st *NotificationStore) snapshot() FeedState {
	return FeedState{
		Notifications: append([]domain.Notification{}, st.items...),
		UnreadCount:   st.unread,
		PanelOpen:     st.panelOpen,
	}
}

// publish must be called with st.mu held.
func (st *NotificationStore) publish() {
	if st.events == nil {
		return
	}
	st.events.Publish(EventNotifications, st.snapshot())
}
