package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/tbourn/chatverse/internal/domain"
)

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 4 << 10

// Client talks to a chat server over REST:
//
//	POST /auth/login            -> {user, token}
//	POST /auth/register         -> {user, token}
//	POST /auth/logout
//	GET  /rooms                 -> [room]
//	GET  /rooms/{id}/messages   -> [message]
//	POST /rooms/{id}/messages   -> message
//
// The stored token, if any, is sent as a bearer credential.
type Client struct {
	BaseURL  string
	HTTP     *http.Client
	Tokens   TokenStore
	TokenTTL time.Duration
}

// NewClient returns a Client with a dedicated http.Client using timeout.
func NewClient(baseURL string, timeout time.Duration, tokens TokenStore) *Client {
	return &Client{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		HTTP:     &http.Client{Timeout: timeout},
		Tokens:   tokens,
		TokenTTL: 24 * time.Hour,
	}
}

type apiError struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

type sendBody struct {
	Text string `json:"text"`
}

// Login posts credentials and stores the issued token.
func (c *Client) Login(ctx context.Context, creds domain.Credentials) (domain.AuthResult, error) {
	return c.authenticate(ctx, "/auth/login", creds)
}

// Register posts a registration and stores the issued token.
func (c *Client) Register(ctx context.Context, reg domain.Registration) (domain.AuthResult, error) {
	return c.authenticate(ctx, "/auth/register", reg)
}

// Logout notifies the server and always drops the stored token.
func (c *Client) Logout(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/auth/logout", nil, nil)
	if c.Tokens != nil {
		if derr := c.Tokens.DeleteToken(ctx); derr != nil {
			err = errors.Join(err, derr)
		}
	}
	if err != nil {
		return &domain.TransportError{Op: "logout", Err: err}
	}
	return nil
}

// FetchRooms lists rooms.
func (c *Client) FetchRooms(ctx context.Context) ([]domain.ChatRoom, error) {
	var rooms []domain.ChatRoom
	if err := c.do(ctx, http.MethodGet, "/rooms", nil, &rooms); err != nil {
		return nil, &domain.TransportError{Op: "fetch_rooms", Err: err}
	}
	return rooms, nil
}

// FetchMessages lists a room's history.
func (c *Client) FetchMessages(ctx context.Context, roomID string) ([]domain.Message, error) {
	var msgs []domain.Message
	if err := c.do(ctx, http.MethodGet, "/rooms/"+url.PathEscape(roomID)+"/messages", nil, &msgs); err != nil {
		return nil, &domain.TransportError{Op: "fetch_messages", Err: err}
	}
	return msgs, nil
}

// SendMessage posts text to a room.
func (c *Client) SendMessage(ctx context.Context, roomID, text string) (*domain.Message, error) {
	var m domain.Message
	if err := c.do(ctx, http.MethodPost, "/rooms/"+url.PathEscape(roomID)+"/messages", sendBody{Text: text}, &m); err != nil {
		return nil, &domain.TransportError{Op: "send_message", Err: err}
	}
	return &m, nil
}

func (c *Client) authenticate(ctx context.Context, path string, body any) (domain.AuthResult, error) {
	var res domain.AuthResult
	err := c.do(ctx, http.MethodPost, path, body, &res)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) {
			return domain.AuthResult{}, &domain.AuthError{Message: se.message, Err: err}
		}
		return domain.AuthResult{}, &domain.TransportError{Op: strings.TrimPrefix(path, "/"), Err: err}
	}
	if c.Tokens != nil && res.Token != "" {
		ttl := c.TokenTTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		if serr := c.Tokens.SaveToken(ctx, tokenRecord(res, time.Now().UTC().Add(ttl))); serr != nil {
			log.Warn().Err(serr).Str("user_id", res.User.ID).Msg("persist session token failed")
		}
	}
	return res, nil
}

// statusError is a non-2xx response.
type statusError struct {
	code    int
	message string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.code, e.message)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Tokens != nil {
		if t, terr := c.Tokens.LoadToken(ctx); terr == nil && t != nil && t.Token != "" {
			req.Header.Set("Authorization", "Bearer "+t.Token)
		}
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &statusError{code: resp.StatusCode, message: readErrorMessage(resp)}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func readErrorMessage(resp *http.Response) string {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var ae apiError
	if json.Unmarshal(raw, &ae) == nil {
		if ae.Message != "" {
			return ae.Message
		}
		if ae.Error != "" {
			return ae.Error
		}
	}
	if s := strings.TrimSpace(string(raw)); s != "" {
		return s
	}
	return http.StatusText(resp.StatusCode)
}
