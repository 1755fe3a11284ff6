package http

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vovakirdan/pchat/internal/auth"
	"github.com/vovakirdan/pchat/internal/client"
	"github.com/vovakirdan/pchat/internal/config"
	"github.com/vovakirdan/pchat/internal/core"
	"github.com/vovakirdan/pchat/internal/hub"
	applog "github.com/vovakirdan/pchat/internal/log"
	"github.com/vovakirdan/pchat/internal/store"
	"github.com/vovakirdan/pchat/internal/store/sqlite"
)

const (
	testSecret   = "test-secret"
	testPassword = "operator-pw"
)

type fakeChat struct {
	mu      sync.Mutex
	sent    []string
	sendErr error
	users   []core.User
	status  client.Status
}

func (f *fakeChat) Send(command string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, command)
	return nil
}

func (f *fakeChat) Status() client.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeChat) Roster() []core.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]core.User(nil), f.users...)
}

func (f *fakeChat) failWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendErr = err
}

func (f *fakeChat) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

type testEnv struct {
	server   *httptest.Server
	chat     *fakeChat
	hub      *hub.Hub
	auth     *auth.Service
	presence store.PresenceStore
}

func (e *testEnv) token(t *testing.T) string {
	t.Helper()
	token, err := e.auth.IssueToken(auth.OperatorName)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hash, err := auth.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	authService := auth.NewService(&auth.JWTConfig{
		Secret:   []byte(testSecret),
		Issuer:   "test",
		Audience: "test",
		TTL:      time.Hour,
	}, hash)

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	chat := &fakeChat{status: client.Status{
		State:   client.StateStreaming.String(),
		Running: true,
		Address: "localhost:5555",
		Account: "alice",
		Channel: "Lobby",
	}}
	events := hub.New(func() string { return "Lobby" }, applog.Nop())

	cfg := config.Default()
	cfg.HTTPAddr = ":0"
	cfg.JWTSecret = testSecret
	server := NewServer(chat, events, authService, st, &cfg, applog.Nop())

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{server: ts, chat: chat, hub: events, auth: authService, presence: st}
}

func seedSightings(t *testing.T, st store.PresenceStore, channel string, names ...string) {
	t.Helper()
	users := make([]store.SeenUser, 0, len(names))
	for _, n := range names {
		users = append(users, store.SeenUser{Name: n, Flags: "f", Ping: "10", Stats: "s"})
	}
	if err := st.RecordRoster(context.Background(), channel, users, time.Now()); err != nil {
		t.Fatalf("record roster: %v", err)
	}
}
