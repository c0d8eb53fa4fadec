package channel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"asistencia/checador-terminal/internal/models"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var testIdentity = models.SessionIdentity{ReaderName: "lector-1", SessionID: "s-abc"}

// fakeController counts lifecycle invocations
type fakeController struct {
	startCalls     int32
	stopCalls      int32
	notReadyCalls  int32
	startAfterStop int32
	ready          atomic.Bool
}

func (f *fakeController) ReserveAndStart(_ context.Context) error {
	if atomic.LoadInt32(&f.stopCalls) > 0 {
		atomic.AddInt32(&f.startAfterStop, 1)
	}
	atomic.AddInt32(&f.startCalls, 1)
	f.ready.Store(true)
	return nil
}

func (f *fakeController) StopAndRelease(_ context.Context) error {
	atomic.AddInt32(&f.stopCalls, 1)
	f.ready.Store(false)
	return nil
}

func (f *fakeController) MarkNotReady() {
	atomic.AddInt32(&f.notReadyCalls, 1)
	f.ready.Store(false)
}

func (f *fakeController) Ready() bool { return f.ready.Load() }

// collector gathers forwarded events and error strings
type collector struct {
	mu       sync.Mutex
	checkins []models.CheckinEvent
	snaps    []models.AttendanceSnapshot
	errs     []string
	notify   chan struct{}
}

func newCollector() *collector {
	return &collector{notify: make(chan struct{}, 64)}
}

func (c *collector) callbacks() Callbacks {
	return Callbacks{
		OnCheckin: func(e models.CheckinEvent) {
			c.mu.Lock()
			c.checkins = append(c.checkins, e)
			c.mu.Unlock()
			c.notify <- struct{}{}
		},
		OnSnapshot: func(s models.AttendanceSnapshot) {
			c.mu.Lock()
			c.snaps = append(c.snaps, s)
			c.mu.Unlock()
			c.notify <- struct{}{}
		},
		OnConnectionError: func(msg string) {
			c.mu.Lock()
			c.errs = append(c.errs, msg)
			c.mu.Unlock()
			c.notify <- struct{}{}
		},
	}
}

func (c *collector) wait(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		c.mu.Lock()
		ok := cond()
		c.mu.Unlock()
		if ok {
			return
		}
		select {
		case <-c.notify:
		case <-deadline:
			t.Fatalf("%s: timeout", msg)
		}
	}
}

// pushServer is a test websocket endpoint that records subscribe frames and
// lets tests push raw messages to the connected terminal
type pushServer struct {
	t        *testing.T
	server   *httptest.Server
	mu       sync.Mutex
	conns    []*websocket.Conn
	frames   []subscribeFrame
	connChan chan *websocket.Conn
}

func newPushServer(t *testing.T) *pushServer {
	t.Helper()
	ps := &pushServer{t: t, connChan: make(chan *websocket.Conn, 4)}
	upgrader := websocket.Upgrader{}
	ps.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("failed to upgrade: %v", err)
			return
		}
		var frame subscribeFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		ps.mu.Lock()
		ps.conns = append(ps.conns, conn)
		ps.frames = append(ps.frames, frame)
		ps.mu.Unlock()
		ps.connChan <- conn
	}))
	t.Cleanup(ps.server.Close)
	return ps
}

func (ps *pushServer) url() string {
	return "ws" + strings.TrimPrefix(ps.server.URL, "http")
}

func (ps *pushServer) waitConn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-ps.connChan:
		return conn
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for terminal connection")
		return nil
	}
}

func TestSupervisor_ConnectStartsReaderAndSubscribes(t *testing.T) {
	ps := newPushServer(t)
	fc := &fakeController{}
	col := newCollector()

	s := NewSupervisor(testIdentity, ps.url(), fc, col.callbacks(), 50*time.Millisecond, zap.NewNop())
	s.Start()
	defer s.Close()

	ps.waitConn(t)

	ps.mu.Lock()
	frame := ps.frames[0]
	ps.mu.Unlock()
	if frame.Topic != "/topic/checador/lector-1" {
		t.Errorf("expected per-reader topic, got %q", frame.Topic)
	}
	if atomic.LoadInt32(&fc.startCalls) != 1 {
		t.Errorf("expected one reserve+start, got %d", fc.startCalls)
	}

	// Connection error cleared on connect
	col.wait(t, func() bool {
		return len(col.errs) > 0 && col.errs[0] == ""
	}, "waiting for cleared connection error")
}

func TestSupervisor_ClassifiesMessages(t *testing.T) {
	ps := newPushServer(t)
	fc := &fakeController{}
	col := newCollector()

	s := NewSupervisor(testIdentity, ps.url(), fc, col.callbacks(), 50*time.Millisecond, zap.NewNop())
	s.Start()
	defer s.Close()

	conn := ps.waitConn(t)

	checkin := `{"lector":"lector-1","identificado":true,"empleadoId":7,"nombreCompleto":"Ana Ruiz","accion":"entrada","codigo":"200","tipo":"OK"}`
	snapshot := `{"type":"FULL_ATTENDANCE_STATE_UPDATE","empleado":{"id":7,"nombreCompleto":"Ana Ruiz"},"jornadas":[{"jornadaDetalleId":12,"estado":"IN_PROGRESS"}]}`

	if err := conn.WriteMessage(websocket.TextMessage, []byte(checkin)); err != nil {
		t.Fatalf("failed to push checkin: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(snapshot)); err != nil {
		t.Fatalf("failed to push snapshot: %v", err)
	}

	col.wait(t, func() bool { return len(col.checkins) == 1 && len(col.snaps) == 1 }, "waiting for classified messages")

	col.mu.Lock()
	defer col.mu.Unlock()
	ev := col.checkins[0]
	if !ev.Identified || ev.EmployeeID == nil || *ev.EmployeeID != 7 {
		t.Errorf("checkin event not forwarded unchanged: %+v", ev)
	}
	snap := col.snaps[0]
	if len(snap.Shifts) != 1 || snap.Shifts[0].ShiftDetailID != 12 {
		t.Errorf("snapshot not forwarded unchanged: %+v", snap)
	}
}

func TestSupervisor_MalformedMessageReportedChannelContinues(t *testing.T) {
	ps := newPushServer(t)
	fc := &fakeController{}
	col := newCollector()

	s := NewSupervisor(testIdentity, ps.url(), fc, col.callbacks(), 50*time.Millisecond, zap.NewNop())
	s.Start()
	defer s.Close()

	conn := ps.waitConn(t)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{not json`)); err != nil {
		t.Fatalf("failed to push malformed body: %v", err)
	}
	col.wait(t, func() bool {
		for _, e := range col.errs {
			if e != "" {
				return true
			}
		}
		return false
	}, "waiting for malformed-message error")

	// Channel keeps delivering after the bad body
	valid := `{"lector":"lector-1","identificado":false,"codigo":"404","tipo":"ERROR"}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(valid)); err != nil {
		t.Fatalf("failed to push valid body: %v", err)
	}
	col.wait(t, func() bool { return len(col.checkins) == 1 }, "waiting for post-error delivery")
}

func TestSupervisor_ReconnectsAfterServerClose(t *testing.T) {
	ps := newPushServer(t)
	fc := &fakeController{}
	col := newCollector()

	s := NewSupervisor(testIdentity, ps.url(), fc, col.callbacks(), 20*time.Millisecond, zap.NewNop())
	s.Start()
	defer s.Close()

	first := ps.waitConn(t)
	_ = first.Close()

	// A second connection means the reconnect loop ran
	ps.waitConn(t)

	if atomic.LoadInt32(&fc.startCalls) < 2 {
		t.Errorf("expected reserve+start on each connect, got %d", fc.startCalls)
	}
	col.wait(t, func() bool {
		for _, e := range col.errs {
			if strings.Contains(e, "perdida") {
				return true
			}
		}
		return false
	}, "waiting for disconnect error string")
}

// A dropped connection must clear reader readiness until the next
// reserve+start, so health reporting never claims a live session over a
// dead channel.
func TestSupervisor_DisconnectClearsReadiness(t *testing.T) {
	ps := newPushServer(t)
	fc := &fakeController{}
	col := newCollector()

	s := NewSupervisor(testIdentity, ps.url(), fc, col.callbacks(), time.Hour, zap.NewNop())
	s.Start()
	defer s.Close()

	conn := ps.waitConn(t)
	if !fc.Ready() {
		t.Fatal("expected reader session ready after connect")
	}
	_ = conn.Close()

	col.wait(t, func() bool {
		return atomic.LoadInt32(&fc.notReadyCalls) >= 1
	}, "waiting for readiness to clear on disconnect")
	if fc.Ready() {
		t.Error("reader session still ready while the push channel is down")
	}
	if s.State() != StateDisconnected {
		t.Errorf("expected disconnected state, got %s", s.State())
	}
}

// Close racing an in-flight dial must still win: the late connection is
// closed, the reader is never re-reserved after teardown, and Close returns.
func TestSupervisor_CloseDuringDialTearsDownCleanly(t *testing.T) {
	upgrader := websocket.Upgrader{}
	dialStarted := make(chan struct{}, 4)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dialStarted <- struct{}{}
		time.Sleep(300 * time.Millisecond)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		var frame subscribeFrame
		_ = conn.ReadJSON(&frame)
	}))
	t.Cleanup(server.Close)

	fc := &fakeController{}
	col := newCollector()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	s := NewSupervisor(testIdentity, wsURL, fc, col.callbacks(), 50*time.Millisecond, zap.NewNop())
	s.Start()

	select {
	case <-dialStarted:
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for dial to reach the server")
	}

	closed := make(chan struct{})
	go func() {
		s.Close()
		close(closed)
	}()

	select {
	case <-closed:
	case <-time.After(3 * time.Second):
		t.Fatal("Close did not return while a dial was in flight")
	}

	// Give a surviving run loop time to misbehave before asserting
	time.Sleep(500 * time.Millisecond)
	if n := atomic.LoadInt32(&fc.startAfterStop); n != 0 {
		t.Errorf("reader re-reserved %d time(s) after teardown", n)
	}
	if atomic.LoadInt32(&fc.stopCalls) != 1 {
		t.Errorf("expected one stop+release, got %d", fc.stopCalls)
	}
	if s.State() != StateDisconnected {
		t.Errorf("expected disconnected state after close, got %s", s.State())
	}
}

func TestSupervisor_CloseTearsDownReaderSession(t *testing.T) {
	ps := newPushServer(t)
	fc := &fakeController{}
	col := newCollector()

	s := NewSupervisor(testIdentity, ps.url(), fc, col.callbacks(), 50*time.Millisecond, zap.NewNop())
	s.Start()
	ps.waitConn(t)

	s.Close()
	if atomic.LoadInt32(&fc.stopCalls) != 1 {
		t.Errorf("expected one stop+release on close, got %d", fc.stopCalls)
	}

	// Close is idempotent
	s.Close()
	if atomic.LoadInt32(&fc.stopCalls) != 1 {
		t.Errorf("second close must not tear down again, got %d", fc.stopCalls)
	}
}
