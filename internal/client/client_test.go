package client

import (
	"bufio"
	"errors"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vovakirdan/pchat/internal/config"
	"github.com/vovakirdan/pchat/internal/core"
)

type mockServer struct {
	ln      net.Listener
	conns   chan net.Conn
	accepts atomic.Int32
}

func startMockServer(t *testing.T) *mockServer {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to start mock server: %v", err)
	}
	m := &mockServer{ln: ln, conns: make(chan net.Conn, 8)}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			m.accepts.Add(1)
			m.conns <- conn
		}
	}()
	t.Cleanup(func() { _ = ln.Close() })
	return m
}

func (m *mockServer) port() int {
	return m.ln.Addr().(*net.TCPAddr).Port
}

func (m *mockServer) next(t *testing.T) (net.Conn, *bufio.Reader) {
	t.Helper()
	select {
	case conn := <-m.conns:
		t.Cleanup(func() { _ = conn.Close() })
		return conn, bufio.NewReader(conn)
	case <-time.After(3 * time.Second):
		t.Fatalf("no connection accepted")
		return nil, nil
	}
}

func readLine(t *testing.T, conn net.Conn, r *bufio.Reader) string {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read line: %v", err)
	}
	if !strings.HasSuffix(line, "\r\n") {
		t.Fatalf("line not CRLF terminated: %q", line)
	}
	return strings.TrimSuffix(line, "\r\n")
}

type logRecorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *logRecorder) Log(text string) {
	r.mu.Lock()
	r.lines = append(r.lines, text)
	r.mu.Unlock()
}

func (r *logRecorder) countPrefix(prefix string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, l := range r.lines {
		if strings.HasPrefix(l, prefix) {
			n++
		}
	}
	return n
}

func (r *logRecorder) waitFor(t *testing.T, prefix string, count int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if r.countPrefix(prefix) >= count {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	t.Fatalf("expected %d log line(s) starting with %q, got %q", count, prefix, r.lines)
}

type rosterRecorder struct {
	mu    sync.Mutex
	calls [][]core.User
}

func (r *rosterRecorder) UpdateRoster(users []core.User) {
	r.mu.Lock()
	r.calls = append(r.calls, users)
	r.mu.Unlock()
}

func (r *rosterRecorder) snapshots() [][]core.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]core.User(nil), r.calls...)
}

func newTestClient(t *testing.T, port int, delay time.Duration) (*Client, *logRecorder, *rosterRecorder, *core.TimerScheduler) {
	t.Helper()

	cfg := config.Default()
	cfg.Host = "127.0.0.1"
	cfg.Port = port
	cfg.Account = "bot"
	cfg.Password = "pw"
	cfg.HomeChannel = "Lobby"
	cfg.ReconnectDelay = delay
	cfg.ConnectTimeout = time.Second
	cfg.BatchDelay = 20 * time.Millisecond

	sched := core.NewScheduler()
	c := New(cfg, sched, nil)
	logs := &logRecorder{}
	roster := &rosterRecorder{}
	c.SetLogSink(logs)
	c.SetRosterSink(roster)

	t.Cleanup(func() {
		_ = c.Close()
		sched.Wait()
	})
	return c, logs, roster, sched
}

func TestClientSendsLoginBlock(t *testing.T) {
	srv := startMockServer(t)
	c, logs, _, _ := newTestClient(t, srv.port(), time.Second)

	c.Start()
	conn, r := srv.next(t)

	want := []string{"C1", "ACCT bot", "PASS pw", "HOME Lobby", "LOGIN"}
	for _, w := range want {
		if got := readLine(t, conn, r); got != w {
			t.Fatalf("expected %q, got %q", w, got)
		}
	}
	logs.waitFor(t, "Connected to 127.0.0.1:", 1)
}

func TestClientRepliesToPing(t *testing.T) {
	srv := startMockServer(t)
	c, _, _, _ := newTestClient(t, srv.port(), time.Second)

	c.Start()
	conn, r := srv.next(t)
	for i := 0; i < 5; i++ {
		readLine(t, conn, r)
	}

	// Split the ping across writes to exercise framing.
	if _, err := conn.Write([]byte("PING 4")); err != nil {
		t.Fatalf("write: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, err := conn.Write([]byte("2\r\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	if got := readLine(t, conn, r); got != "/PONG 42" {
		t.Fatalf("unexpected pong %q", got)
	}
}

func TestClientSend(t *testing.T) {
	srv := startMockServer(t)
	c, _, _, _ := newTestClient(t, srv.port(), time.Second)

	c.Start()
	conn, r := srv.next(t)
	for i := 0; i < 5; i++ {
		readLine(t, conn, r)
	}

	if err := c.Send("/join Den"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got := readLine(t, conn, r); got != "/join Den" {
		t.Fatalf("unexpected command %q", got)
	}
}

func TestClientConcurrentWritesDoNotInterleave(t *testing.T) {
	srv := startMockServer(t)
	c, _, _, _ := newTestClient(t, srv.port(), time.Second)

	c.Start()
	conn, r := srv.next(t)
	for i := 0; i < 5; i++ {
		readLine(t, conn, r)
	}

	const n = 50
	payload := strings.Repeat("x", 512)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = c.Send("/say " + payload)
		}()
		go func() {
			defer wg.Done()
			_ = c.Pong("id")
		}()
	}
	wg.Wait()

	for i := 0; i < 2*n; i++ {
		line := readLine(t, conn, r)
		if line != "/say "+payload && line != "/PONG id" {
			t.Fatalf("interleaved write: %q", line)
		}
	}
}

func TestClientSendRequiresRunning(t *testing.T) {
	c, _, _, _ := newTestClient(t, 1, time.Second)
	if err := c.Send("hello"); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
}

func TestClientReconnectsAfterPeerClose(t *testing.T) {
	srv := startMockServer(t)
	c, logs, roster, _ := newTestClient(t, srv.port(), 100*time.Millisecond)

	c.Start()
	conn, _ := srv.next(t)
	_ = conn.Close()

	logs.waitFor(t, "Connection closed", 1)
	logs.waitFor(t, "Attempting to reconnect in 0.1 seconds...", 1)

	srv.next(t)
	logs.waitFor(t, "Connected to", 2)
	if got := srv.accepts.Load(); got != 2 {
		t.Fatalf("expected exactly one reconnect, got %d accepts", got)
	}

	snaps := roster.snapshots()
	if len(snaps) == 0 || len(snaps[0]) != 0 {
		t.Fatalf("expected the cleared roster to be published, got %v", snaps)
	}
}

func TestClientStopCancelsPendingReconnect(t *testing.T) {
	srv := startMockServer(t)
	c, logs, _, _ := newTestClient(t, srv.port(), 300*time.Millisecond)

	c.Start()
	conn, _ := srv.next(t)
	_ = conn.Close()

	logs.waitFor(t, "Attempting to reconnect", 1)
	c.Stop()

	time.Sleep(600 * time.Millisecond)
	if got := srv.accepts.Load(); got != 1 {
		t.Fatalf("expected no reconnect after stop, got %d accepts", got)
	}
	if c.State() != StateStopped {
		t.Fatalf("expected stopped state, got %v", c.State())
	}
}

func TestClientStopIsCooperative(t *testing.T) {
	srv := startMockServer(t)
	c, logs, _, _ := newTestClient(t, srv.port(), 50*time.Millisecond)

	c.Start()
	conn, r := srv.next(t)
	for i := 0; i < 5; i++ {
		readLine(t, conn, r)
	}

	c.Stop()
	if c.State() != StateStreaming {
		t.Fatalf("stop must not interrupt the read, state %v", c.State())
	}

	// The next read return ends the loop without reconnecting.
	_, _ = conn.Write([]byte("SERVER INFO 0 bye\r\n"))
	logs.waitFor(t, "Connection closed", 1)

	time.Sleep(200 * time.Millisecond)
	if got := srv.accepts.Load(); got != 1 {
		t.Fatalf("expected no reconnect, got %d accepts", got)
	}
	if logs.countPrefix("Attempting to reconnect") != 0 {
		t.Fatalf("reconnect must not be scheduled after stop")
	}
}

func TestClientConnectRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()

	c, logs, _, _ := newTestClient(t, port, 50*time.Millisecond)
	c.Start()

	logs.waitFor(t, "Connection refused: ", 1)
	logs.waitFor(t, "Attempting to reconnect in 0.05 seconds...", 1)
	c.Stop()
}

func TestClientPresenceFlow(t *testing.T) {
	srv := startMockServer(t)
	c, logs, roster, _ := newTestClient(t, srv.port(), time.Second)

	c.Start()
	conn, r := srv.next(t)
	for i := 0; i < 5; i++ {
		readLine(t, conn, r)
	}

	stream := "OK\r\nCHANNEL JOIN Lobby\r\n" +
		"USER IN 1 2 f 10 alice s\r\n" +
		"USER IN 1 2 f 20 bob s\r\n" +
		"USER TALK 1 2 f 10 alice hi all\r\n"
	if _, err := conn.Write([]byte(stream)); err != nil {
		t.Fatalf("write: %v", err)
	}

	logs.waitFor(t, "CHANNEL_JOIN Lobby", 1)
	logs.waitFor(t, "alice: hi all", 1)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && len(roster.snapshots()) == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	snaps := roster.snapshots()
	if len(snaps) != 1 || len(snaps[0]) != 2 {
		t.Fatalf("expected one snapshot with two users, got %v", snaps)
	}

	st := c.Status()
	if st.Channel != "Lobby" || st.Users != 2 || st.State != "streaming" || !st.Running {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestStateNames(t *testing.T) {
	for s, want := range map[State]string{
		StateDisconnected:     "disconnected",
		StateConnecting:       "connecting",
		StateStreaming:        "streaming",
		StateReconnectWaiting: "reconnect_waiting",
		StateStopped:          "stopped",
		State(99):             "unknown",
	} {
		if s.String() != want {
			t.Fatalf("unexpected name %q for %d", s.String(), s)
		}
	}
}
