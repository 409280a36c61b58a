// Package services – FeedService
//
// FeedService owns the notification feed's timed inputs: the welcome notice
// pushed at start-up and the periodic notices drawn from a Source.
package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"

	"github.com/tbourn/chatverse/internal/domain"
	"github.com/tbourn/chatverse/internal/store"
)

// WelcomeID is the fixed id of the start-up notification.
const WelcomeID = "welcome"

// DefaultInterval is the periodic notice cadence.
const DefaultInterval = 30 * time.Second

// Notice is a canned notification payload.
type Notice struct {
	Title    string          `yaml:"title" json:"title"`
	Message  string          `yaml:"message" json:"message"`
	Severity domain.Severity `yaml:"severity" json:"severity"`
}

// DefaultCatalog returns the built-in periodic notices.
func DefaultCatalog() []Notice {
	return []Notice{
		{Title: "New Feature!", Message: "Check out our new emoji reactions feature.", Severity: domain.SeverityInfo},
		{Title: "Credit Bonus", Message: "You received 10 bonus credits for being active!", Severity: domain.SeveritySuccess},
		{Title: "Server Maintenance", Message: "Scheduled maintenance will occur tonight at 2 AM.", Severity: domain.SeverityWarning},
	}
}

// ErrEmptyCatalog is returned when a catalog holds no notices.
var ErrEmptyCatalog = errors.New("notice catalog is empty")

type catalogFile struct {
	Notices []Notice `yaml:"notices"`
}

// LoadCatalog reads a YAML catalog of the form:
//
//	notices:
//	  - title: New Feature!
//	    message: Check out our new emoji reactions feature.
//	    severity: info
func LoadCatalog(path string) ([]Notice, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(raw)
}

// ParseCatalog decodes and validates catalog bytes.
func ParseCatalog(raw []byte) ([]Notice, error) {
	var f catalogFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if len(f.Notices) == 0 {
		return nil, ErrEmptyCatalog
	}
	for i, n := range f.Notices {
		if strings.TrimSpace(n.Title) == "" {
			return nil, fmt.Errorf("notice %d: title is required", i)
		}
		if n.Severity == "" {
			f.Notices[i].Severity = domain.SeverityInfo
			continue
		}
		if !n.Severity.Valid() {
			return nil, fmt.Errorf("notice %d: invalid severity %q", i, n.Severity)
		}
	}
	return f.Notices, nil
}

// Source supplies the next periodic notice.
type Source interface {
	Next() Notice
}

// RandomSource picks uniformly from its notices.
type RandomSource struct {
	mu      sync.Mutex
	rng     *rand.Rand
	notices []Notice
}

// NewRandomSource returns a source seeded with seed. An empty list falls back
// to DefaultCatalog.
func NewRandomSource(notices []Notice, seed uint64) *RandomSource {
	if len(notices) == 0 {
		notices = DefaultCatalog()
	}
	return &RandomSource{
		rng:     rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		notices: append([]Notice(nil), notices...),
	}
}

func (r *RandomSource) Next() Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.notices[r.rng.IntN(len(r.notices))]
}

// SequenceSource cycles through its notices in order.
type SequenceSource struct {
	mu      sync.Mutex
	notices []Notice
	next    int
}

// NewSequenceSource returns a deterministic source. An empty list falls back
// to DefaultCatalog.
func NewSequenceSource(notices ...Notice) *SequenceSource {
	if len(notices) == 0 {
		notices = DefaultCatalog()
	}
	return &SequenceSource{notices: notices}
}

func (q *SequenceSource) Next() Notice {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := q.notices[q.next%len(q.notices)]
	q.next++
	return n
}

// FeedService pushes timed notifications.
type FeedService struct {
	Feed           *store.NotificationStore
	Source         Source
	Interval       time.Duration
	InitialCredits int
	MessageCost    int // defaults to DefaultMessageCost

	// Optional
	Now   func() time.Time
	NewID func() string
}

// Welcome pushes the start-up notification stating the starting balance.
func (s *FeedService) Welcome() domain.Notification {
	cost := s.MessageCost
	if cost < 1 {
		cost = DefaultMessageCost
	}
	p := message.NewPrinter(language.English)
	n := domain.Notification{
		ID:    WelcomeID,
		Title: "Welcome to Chatverse! 🎉",
		Message: p.Sprintf("You have %d credits to start chatting. Each message costs %d %s.",
			s.InitialCredits, cost, creditUnit(cost)),
		Severity:  domain.SeveritySuccess,
		Timestamp: s.now(),
	}
	s.Feed.Push(n)
	return n
}

// EmitNext pushes one notice from the source.
func (s *FeedService) EmitNext() domain.Notification {
	src := s.Source
	if src == nil {
		src = NewSequenceSource()
	}
	notice := src.Next()
	n := domain.Notification{
		ID:        s.newID(),
		Title:     notice.Title,
		Message:   notice.Message,
		Severity:  notice.Severity,
		Timestamp: s.now(),
	}
	s.Feed.Push(n)
	return n
}

// Run emits a notice every Interval until ctx is done.
func (s *FeedService) Run(ctx context.Context) error {
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	tr := otel.Tracer("services/FeedService")
	t := time.NewTicker(interval)
	defer t.Stop()

	log.Info().Dur("interval", interval).Msg("notification feed started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("notification feed stopped")
			return nil
		case <-t.C:
			_, span := tr.Start(ctx, "EmitNext")
			n := s.EmitNext()
			span.SetAttributes(
				attribute.String("notification.id", n.ID),
				attribute.String("notification.severity", string(n.Severity)),
			)
			span.End()
		}
	}
}

func (s *FeedService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *FeedService) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}
