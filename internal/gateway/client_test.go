package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tbourn/chatverse/internal/domain"
)

func newTestServer(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var auths []string
	mux := http.NewServeMux()

	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		var c domain.Credentials
		_ = json.NewDecoder(r.Body).Decode(&c)
		if c.Password != "good" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"Invalid credentials"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(domain.AuthResult{User: domain.User{ID: "7", Username: c.Username}, Token: "tok-7"})
	})
	mux.HandleFunc("POST /auth/register", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"username taken"}`))
	})
	mux.HandleFunc("POST /auth/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /rooms", func(w http.ResponseWriter, r *http.Request) {
		auths = append(auths, r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode([]domain.ChatRoom{{ID: "1", Name: "General"}})
	})
	mux.HandleFunc("GET /rooms/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") == "missing" {
			http.Error(w, "no such room", http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode([]domain.Message{{ID: "m1", RoomID: r.PathValue("id")}})
	})
	mux.HandleFunc("POST /rooms/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		var b sendBody
		_ = json.NewDecoder(r.Body).Decode(&b)
		_ = json.NewEncoder(w).Encode(domain.Message{ID: "s1", Text: b.Text, RoomID: r.PathValue("id"), Timestamp: time.Unix(1, 0)})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &auths
}

func TestClient_LoginStoresTokenAndSendsBearer(t *testing.T) {
	srv, auths := newTestServer(t)
	tokens := &memTokens{}
	c := NewClient(srv.URL+"/", time.Second, tokens)
	ctx := context.Background()

	if _, err := c.FetchRooms(ctx); err != nil {
		t.Fatal(err)
	}
	res, err := c.Login(ctx, domain.Credentials{Username: "dan", Password: "good"})
	if err != nil {
		t.Fatal(err)
	}
	if res.User.ID != "7" || tokens.tok == nil || tokens.tok.Token != "tok-7" {
		t.Fatalf("res=%+v stored=%+v", res, tokens.tok)
	}
	if _, err := c.FetchRooms(ctx); err != nil {
		t.Fatal(err)
	}
	if (*auths)[0] != "" || (*auths)[1] != "Bearer tok-7" {
		t.Fatalf("authorization headers=%q", *auths)
	}
}

func TestClient_AuthFailuresAreAuthErrors(t *testing.T) {
	srv, _ := newTestServer(t)
	c := NewClient(srv.URL, time.Second, nil)

	_, err := c.Login(context.Background(), domain.Credentials{Username: "dan", Password: "bad"})
	var aerr *domain.AuthError
	if !errors.As(err, &aerr) || aerr.Message != "Invalid credentials" {
		t.Fatalf("err=%v", err)
	}
	_, err = c.Register(context.Background(), domain.Registration{Username: "dan", Password: "x"})
	if !errors.As(err, &aerr) || aerr.Message != "username taken" {
		t.Fatalf("err=%v", err)
	}
}

func TestClient_ChatCallsAndTransportErrors(t *testing.T) {
	srv, _ := newTestServer(t)
	c := NewClient(srv.URL, time.Second, nil)
	ctx := context.Background()

	msgs, err := c.FetchMessages(ctx, "1")
	if err != nil || len(msgs) != 1 || msgs[0].RoomID != "1" {
		t.Fatalf("msgs=%+v err=%v", msgs, err)
	}

	m, err := c.SendMessage(ctx, "1", "hello")
	if err != nil || m.Text != "hello" || m.RoomID != "1" {
		t.Fatalf("m=%+v err=%v", m, err)
	}

	_, err = c.FetchMessages(ctx, "missing")
	var terr *domain.TransportError
	if !errors.As(err, &terr) || terr.Op != "fetch_messages" {
		t.Fatalf("err=%v", err)
	}

	down := NewClient("http://127.0.0.1:1", 200*time.Millisecond, nil)
	if _, err := down.FetchRooms(ctx); !errors.As(err, &terr) {
		t.Fatalf("unreachable server err=%v", err)
	}
	// a network failure on an auth endpoint is not an auth error
	var aerr *domain.AuthError
	if _, err := down.Login(ctx, domain.Credentials{Username: "a", Password: "b"}); errors.As(err, &aerr) {
		t.Fatalf("err=%v", err)
	}
}

func TestClient_LogoutDeletesToken(t *testing.T) {
	srv, _ := newTestServer(t)
	tokens := &memTokens{tok: &domain.AuthToken{Token: "x"}}
	c := NewClient(srv.URL, time.Second, tokens)
	if err := c.Logout(context.Background()); err != nil {
		t.Fatal(err)
	}
	if tokens.tok != nil || tokens.deletes != 1 {
		t.Fatalf("tokens=%+v", tokens)
	}
}
