package gateway

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/tbourn/chatverse/internal/domain"
)

// Latencies are the artificial delays of each simulated call.
type Latencies struct {
	Login    time.Duration
	Register time.Duration
	Logout   time.Duration
	Rooms    time.Duration
	Messages time.Duration
	Send     time.Duration
}

// DefaultLatencies mirror a slow development backend.
func DefaultLatencies() Latencies {
	return Latencies{
		Login:    time.Second,
		Register: time.Second,
		Logout:   500 * time.Millisecond,
		Rooms:    time.Second,
		Messages: 800 * time.Millisecond,
		Send:     500 * time.Millisecond,
	}
}

// SimulatedConfig configures a Simulated gateway.
type SimulatedConfig struct {
	Latency Latencies
	// Scale multiplies every latency; 0 disables delays.
	Scale float64

	Secret   string
	TokenTTL time.Duration

	// SendFailureRate is the probability in [0,1] that SendMessage fails.
	SendFailureRate float64

	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
}

const devSecret = "chatverse-dev-secret"

type account struct {
	user domain.User
	hash []byte
}

// Simulated is an in-process gateway with canned rooms and history.
//
// Any non-empty username/password pair logs in unless the username was
// registered through this gateway, in which case the password is checked
// against the stored bcrypt hash.
type Simulated struct {
	cfg    SimulatedConfig
	tokens TokenStore

	mu       sync.Mutex
	accounts map[string]account
	rng      *rand.Rand

	// test seams
	now   func() time.Time
	newID func() string
}

// NewSimulated returns a simulated gateway. tokens may be nil.
func NewSimulated(cfg SimulatedConfig, tokens TokenStore) *Simulated {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if cfg.Secret == "" {
		cfg.Secret = devSecret
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	return &Simulated{
		cfg:      cfg,
		tokens:   tokens,
		accounts: make(map[string]account),
		rng:      rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5eed)),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
}

// Login authenticates a user.
func (g *Simulated) Login(ctx context.Context, c domain.Credentials) (domain.AuthResult, error) {
	if err := g.wait(ctx, g.cfg.Latency.Login); err != nil {
		return domain.AuthResult{}, &domain.AuthError{Message: "Invalid credentials", Err: err}
	}
	if c.Username == "" || c.Password == "" {
		return domain.AuthResult{}, &domain.AuthError{Message: "Invalid credentials"}
	}

	g.mu.Lock()
	acct, registered := g.accounts[strings.ToLower(c.Username)]
	g.mu.Unlock()

	user := domain.User{ID: "1", Username: c.Username, Avatar: Avatar(c.Username)}
	if registered {
		if err := bcrypt.CompareHashAndPassword(acct.hash, []byte(c.Password)); err != nil {
			return domain.AuthResult{}, &domain.AuthError{Message: "Invalid credentials"}
		}
		user = acct.user
	}
	return g.issue(ctx, user)
}

// Register creates an account. A username already taken is a conflict.
func (g *Simulated) Register(ctx context.Context, r domain.Registration) (domain.AuthResult, error) {
	if err := g.wait(ctx, g.cfg.Latency.Register); err != nil {
		return domain.AuthResult{}, &domain.AuthError{Message: "Registration failed", Err: err}
	}
	if r.Username == "" || r.Password == "" {
		return domain.AuthResult{}, &domain.AuthError{Message: "Registration failed"}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(r.Password), g.cfg.BcryptCost)
	if err != nil {
		return domain.AuthResult{}, &domain.AuthError{Message: "Registration failed", Err: err}
	}

	key := strings.ToLower(r.Username)
	g.mu.Lock()
	if _, taken := g.accounts[key]; taken {
		g.mu.Unlock()
		return domain.AuthResult{}, &domain.AuthError{Message: "Username is already taken"}
	}
	user := domain.User{ID: g.newID(), Username: r.Username, Email: r.Email, Avatar: Avatar(r.Username)}
	g.accounts[key] = account{user: user, hash: hash}
	g.mu.Unlock()

	return g.issue(ctx, user)
}

// Logout drops the stored token.
func (g *Simulated) Logout(ctx context.Context) error {
	if err := g.wait(ctx, g.cfg.Latency.Logout); err != nil {
		return err
	}
	if g.tokens == nil {
		return nil
	}
	return g.tokens.DeleteToken(ctx)
}

// FetchRooms returns the two canned rooms.
func (g *Simulated) FetchRooms(ctx context.Context) ([]domain.ChatRoom, error) {
	if err := g.wait(ctx, g.cfg.Latency.Rooms); err != nil {
		return nil, &domain.TransportError{Op: "fetch_rooms", Err: err}
	}
	now := g.now()
	return []domain.ChatRoom{
		{ID: "1", Name: "General", Description: "General discussion", Participants: []domain.User{}, CreatedAt: now},
		{ID: "2", Name: "Random", Description: "Random topics", Participants: []domain.User{}, CreatedAt: now},
	}, nil
}

// FetchMessages returns the canned history for any room.
func (g *Simulated) FetchMessages(ctx context.Context, roomID string) ([]domain.Message, error) {
	if err := g.wait(ctx, g.cfg.Latency.Messages); err != nil {
		return nil, &domain.TransportError{Op: "fetch_messages", Err: err}
	}
	now := g.now()
	return []domain.Message{
		{
			ID: "1", Text: "Welcome to Chatverse!", UserID: "system", Username: "System",
			Avatar: systemAvatar(), Timestamp: now.Add(-time.Hour), RoomID: roomID,
		},
		{
			ID: "2", Text: "Hello everyone! 👋", UserID: "2", Username: "Alice",
			Avatar: Avatar("Alice"), Timestamp: now.Add(-30 * time.Minute), RoomID: roomID,
		},
	}, nil
}

// SendMessage echoes id, text, timestamp and room. Author identity is left
// for the caller to fill in.
func (g *Simulated) SendMessage(ctx context.Context, roomID, text string) (*domain.Message, error) {
	if err := g.wait(ctx, g.cfg.Latency.Send); err != nil {
		return nil, &domain.TransportError{Op: "send_message", Err: err}
	}
	if err := g.authorize(ctx); err != nil {
		return nil, err
	}
	if g.shouldFail() {
		return nil, &domain.TransportError{Op: "send_message", Err: errSimulatedFailure}
	}
	return &domain.Message{ID: g.newID(), Text: text, Timestamp: g.now(), RoomID: roomID}, nil
}

var errSimulatedFailure = errors.New("simulated server error")

func (g *Simulated) shouldFail() bool {
	if g.cfg.SendFailureRate <= 0 {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.Float64() < g.cfg.SendFailureRate
}

func (g *Simulated) issue(ctx context.Context, user domain.User) (domain.AuthResult, error) {
	token, exp, err := GenerateToken(user.ID, user.Username, g.cfg.Secret, g.cfg.TokenTTL, g.now())
	if err != nil {
		return domain.AuthResult{}, &domain.AuthError{Message: "Invalid credentials", Err: err}
	}
	res := domain.AuthResult{User: user, Token: token}
	if g.tokens != nil {
		if err := g.tokens.SaveToken(ctx, tokenRecord(res, exp)); err != nil {
			log.Warn().Err(err).Str("user_id", user.ID).Msg("persist session token failed")
		}
	}
	return res, nil
}

// authorize rejects a stored session token that no longer verifies, the way
// a server rejects an expired bearer. No stored token is not checked.
func (g *Simulated) authorize(ctx context.Context) error {
	if g.tokens == nil {
		return nil
	}
	t, err := g.tokens.LoadToken(ctx)
	if err != nil || t == nil || t.Token == "" {
		return nil
	}
	if _, err := ParseToken(t.Token, g.cfg.Secret, g.now()); err != nil {
		return &domain.AuthError{Message: "Session expired", Err: err}
	}
	return nil
}

func (g *Simulated) wait(ctx context.Context, d time.Duration) error {
	d = time.Duration(float64(d) * g.cfg.Scale)
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
