package store

import (
	"sync"

	"github.com/tbourn/chatverse/internal/domain"
)

// RoomState is a point-in-time copy of the room store.
type RoomState struct {
	Rooms    []domain.ChatRoom `json:"rooms"`
	Active   *domain.ChatRoom  `json:"active,omitempty"`
	Messages []domain.Message  `json:"messages"`
	Credits  int               `json:"credits"`
	Loading  bool              `json:"loading"`
}

// RoomStore owns the room collection, the active room, the message log of the
// active room and the credit balance.
//
// The message log is not partitioned per room: selecting another room keeps the
// previous log until the caller reloads it.
type RoomStore struct {
	mu       sync.RWMutex
	rooms    []domain.ChatRoom
	active   *domain.ChatRoom
	messages []domain.Message
	credits  int
	loading  bool
	events   *Broker
}

// NewRoomStore returns an empty store holding the given starting balance.
func NewRoomStore(initialCredits int, events *Broker) *RoomStore {
	if initialCredits < 0 {
		initialCredits = 0
	}
	return &RoomStore{credits: initialCredits, events: events}
}

// SetRooms replaces the collection in the order supplied. Ids are unique: a
// repeated id keeps its first occurrence. When no room is active and the new
// collection is non-empty, its first element becomes active.
func (st *RoomStore) SetRooms(rooms []domain.ChatRoom) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.rooms = make([]domain.ChatRoom, 0, len(rooms))
	seen := make(map[string]struct{}, len(rooms))
	for _, r := range rooms {
		if _, dup := seen[r.ID]; dup {
			continue
		}
		seen[r.ID] = struct{}{}
		st.rooms = append(st.rooms, r.Clone())
	}
	if st.active == nil && len(st.rooms) > 0 {
		first := st.rooms[0].Clone()
		st.active = &first
	}
	st.publish(EventRooms)
}

// AddRoom appends one room to the collection, or replaces in place the room
// already holding its id.
func (st *RoomStore) AddRoom(room domain.ChatRoom) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if i := st.indexOf(room.ID); i >= 0 {
		st.rooms[i] = room.Clone()
	} else {
		st.rooms = append(st.rooms, room.Clone())
	}
	st.publish(EventRooms)
}

// SelectRoom makes room active. Loaded messages are left untouched.
func (st *RoomStore) SelectRoom(room domain.ChatRoom) {
	st.mu.Lock()
	defer st.mu.Unlock()
	r := room.Clone()
	st.active = &r
	st.publish(EventRooms)
}

// SetMessages replaces the whole message log.
func (st *RoomStore) SetMessages(list []domain.Message) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.messages = append([]domain.Message(nil), list...)
	st.publish(EventMessages)
}

// AppendMessage adds m at the end of the log.
func (st *RoomStore) AppendMessage(m domain.Message) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.messages = append(st.messages, m)
	st.publish(EventMessages)
}

// CommitSend appends m and deducts cost, clamping at zero, as one mutation
// published as a single EventSent. It returns the credits actually deducted
// and the new balance.
func (st *RoomStore) CommitSend(m domain.Message, cost int) (spent, balance int) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.messages = append(st.messages, m)
	before := st.credits
	if cost > 0 {
		st.credits = max(0, st.credits-cost)
	}
	st.publish(EventSent)
	return before - st.credits, st.credits
}

// SpendCredits deducts n, clamping at zero, and returns the new balance.
// Non-positive amounts never raise the balance and are ignored.
func (st *RoomStore) SpendCredits(n int) int {
	st.mu.Lock()
	defer st.mu.Unlock()
	if n <= 0 || st.credits == 0 {
		return st.credits
	}
	st.credits = max(0, st.credits-n)
	st.publish(EventCredits)
	return st.credits
}

// SetCredits overrides the balance (top-ups). Negative values are stored as zero.
func (st *RoomStore) SetCredits(n int) int {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.credits = max(0, n)
	st.publish(EventCredits)
	return st.credits
}

// SetLoading flips the loading flag shown while rooms or messages are fetched.
func (st *RoomStore) SetLoading(v bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.loading == v {
		return
	}
	st.loading = v
	st.publish(EventRooms)
}

// Credits returns the current balance.
func (st *RoomStore) Credits() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.credits
}

// ActiveRoom returns the active room, if any.
func (st *RoomStore) ActiveRoom() (domain.ChatRoom, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if st.active == nil {
		return domain.ChatRoom{}, false
	}
	return st.active.Clone(), true
}

// Room looks a room up by id.
func (st *RoomStore) Room(id string) (domain.ChatRoom, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if i := st.indexOf(id); i >= 0 {
		return st.rooms[i].Clone(), true
	}
	return domain.ChatRoom{}, false
}

// indexOf must be called with st.mu held.
func (st *RoomStore) indexOf(id string) int {
	for i, r := range st.rooms {
		if r.ID == id {
			return i
		}
	}
	return -1
}

// Message looks a logged message up by id.
func (st *RoomStore) Message(id string) (domain.Message, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	for _, m := range st.messages {
		if m.ID == id {
			return m, true
		}
	}
	return domain.Message{}, false
}

// Messages returns a copy of the log.
func (st *RoomStore) Messages() []domain.Message {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return append([]domain.Message{}, st.messages...)
}

// Snapshot returns a copy of the whole store.
func (st *RoomStore) Snapshot() RoomState {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.snapshot()
}

func (st *RoomStore) snapshot() RoomState {
	out := RoomState{
		Rooms:    cloneRooms(st.rooms),
		Messages: append([]domain.Message{}, st.messages...),
		Credits:  st.credits,
		Loading:  st.loading,
	}
	if out.Rooms == nil {
		out.Rooms = []domain.ChatRoom{}
	}
	if st.active != nil {
		a := st.active.Clone()
		out.Active = &a
	}
	return out
}

// publish must be called with st.mu held.
func (st *RoomStore) publish(kind EventKind) {
	if st.events == nil {
		return
	}
	st.events.Publish(kind, st.snapshot())
}

func cloneRooms(in []domain.ChatRoom) []domain.ChatRoom {
	if in == nil {
		return nil
	}
	out := make([]domain.ChatRoom, len(in))
	for i, r := range in {
		out[i] = r.Clone()
	}
	return out
}
