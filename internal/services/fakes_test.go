package services

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tbourn/chatverse/internal/domain"
	"github.com/tbourn/chatverse/internal/store"
)

// ----- Fake gateway -----

type sendReply struct {
	msg *domain.Message
	err error
}

type sendCall struct {
	roomID string
	text   string
	reply  chan sendReply
}

type fakeGateway struct {
	mu sync.Mutex

	loginRes    domain.AuthResult
	loginErr    error
	registerRes domain.AuthResult
	registerErr error
	logoutErr   error

	logins    []domain.Credentials
	registers []domain.Registration
	logouts   int

	rooms    []domain.ChatRoom
	roomsErr error
	messages map[string][]domain.Message
	msgsErr  error
	fetched  []string

	// When manual is true SendMessage blocks until the test answers on the
	// call's reply channel; otherwise it echoes immediately.
	manual  bool
	calls   chan sendCall
	sendErr error
	sends   []string
	seq     int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{calls: make(chan sendCall, 16), messages: map[string][]domain.Message{}}
}

func (g *fakeGateway) Login(ctx context.Context, c domain.Credentials) (domain.AuthResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.logins = append(g.logins, c)
	return g.loginRes, g.loginErr
}

func (g *fakeGateway) Register(ctx context.Context, r domain.Registration) (domain.AuthResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.registers = append(g.registers, r)
	return g.registerRes, g.registerErr
}

func (g *fakeGateway) Logout(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.logouts++
	return g.logoutErr
}

func (g *fakeGateway) FetchRooms(ctx context.Context) ([]domain.ChatRoom, error) {
	return g.rooms, g.roomsErr
}

func (g *fakeGateway) FetchMessages(ctx context.Context, roomID string) ([]domain.Message, error) {
	g.mu.Lock()
	g.fetched = append(g.fetched, roomID)
	g.mu.Unlock()
	return g.messages[roomID], g.msgsErr
}

func (g *fakeGateway) SendMessage(ctx context.Context, roomID, text string) (*domain.Message, error) {
	g.mu.Lock()
	g.sends = append(g.sends, text)
	g.seq++
	id := "srv-" + text
	manual, sendErr := g.manual, g.sendErr
	g.mu.Unlock()

	if !manual {
		if sendErr != nil {
			return nil, sendErr
		}
		return &domain.Message{ID: id, Text: text, RoomID: roomID, Timestamp: time.Unix(1700000000, 0)}, nil
	}

	call := sendCall{roomID: roomID, text: text, reply: make(chan sendReply, 1)}
	g.calls <- call
	select {
	case r := <-call.reply:
		return r.msg, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (g *fakeGateway) sendCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sends)
}

var errNetwork = errors.New("network down")

// ----- Fake recorder -----

type fakeRecorder struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *fakeRecorder) RecordSend(outcome string) {
	r.mu.Lock()
	r.outcomes = append(r.outcomes, outcome)
	r.mu.Unlock()
}

// ----- Fixture -----

type fixture struct {
	broker  *store.Broker
	session *store.SessionStore
	rooms   *store.RoomStore
	feed    *store.NotificationStore
	gw      *fakeGateway
	rec     *fakeRecorder
	chat    *ChatService
	auth    *AuthService
}

func newFixture(credits int) *fixture {
	b := store.NewBroker()
	f := &fixture{
		broker:  b,
		session: store.NewSessionStore(b),
		rooms:   store.NewRoomStore(credits, b),
		feed:    store.NewNotificationStore(b),
		gw:      newFakeGateway(),
		rec:     &fakeRecorder{},
	}
	var ids atomic.Int64
	f.chat = &ChatService{
		Session:     f.session,
		Rooms:       f.rooms,
		Feed:        f.feed,
		Gateway:     f.gw,
		MessageCost: 1,
		Recorder:    f.rec,
		Now:         func() time.Time { return time.Unix(1700000100, 0).UTC() },
		NewID: func() string {
			return "id-" + strconv.FormatInt(ids.Add(1), 10)
		},
	}
	f.auth = &AuthService{Session: f.session, Gateway: f.gw}
	return f
}

// ready logs a user in and selects room r1.
func (f *fixture) ready() *fixture {
	f.session.CompleteAuth(domain.User{ID: "u1", Username: "alice", Avatar: "a.svg"})
	f.rooms.SetRooms([]domain.ChatRoom{{ID: "r1", Name: "General"}, {ID: "r2", Name: "Random"}})
	return f
}
