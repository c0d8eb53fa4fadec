package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"asistencia/checador-terminal/internal/models"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ConnState is the push channel connection state
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
)

const (
	handshakeTimeout = 10 * time.Second
	teardownTimeout  = 5 * time.Second
	writeWait        = 10 * time.Second
)

// SessionController is the reader lifecycle the supervisor drives on
// connect and teardown
type SessionController interface {
	ReserveAndStart(ctx context.Context) error
	StopAndRelease(ctx context.Context) error
	MarkNotReady()
	Ready() bool
}

// Callbacks are the injected collaborators the supervisor forwards to.
// Handlers receive classified messages unchanged; no business logic runs
// in the supervisor. OnConnectionError receives "" to clear a prior error.
type Callbacks struct {
	OnCheckin         func(models.CheckinEvent)
	OnSnapshot        func(models.AttendanceSnapshot)
	OnConnectionError func(msg string)
}

// subscribeFrame is the frame sent after connect to join the per-reader topic
type subscribeFrame struct {
	Type  string `json:"type"`
	Topic string `json:"topic"`
}

// Supervisor opens and maintains the push connection for one
// (reader, session) identity, subscribes to the per-reader topic,
// classifies inbound messages and forwards them. A changed identity means
// a new supervisor; Close stops the loop, then tears down the reader session.
type Supervisor struct {
	identity       models.SessionIdentity
	wsURL          string
	controller     SessionController
	callbacks      Callbacks
	reconnectDelay time.Duration
	dialer         *websocket.Dialer
	logger         *zap.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	state    ConnState
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewSupervisor creates a supervisor for one identity. wsURL is the full
// websocket endpoint of the backend push channel.
func NewSupervisor(
	identity models.SessionIdentity,
	wsURL string,
	controller SessionController,
	callbacks Callbacks,
	reconnectDelay time.Duration,
	logger *zap.Logger,
) *Supervisor {
	return &Supervisor{
		identity:       identity,
		wsURL:          wsURL,
		controller:     controller,
		callbacks:      callbacks,
		reconnectDelay: reconnectDelay,
		dialer: &websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
		},
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Identity returns the (reader, session) pair this supervisor serves.
func (s *Supervisor) Identity() models.SessionIdentity {
	return s.identity
}

// State returns the current connection state.
func (s *Supervisor) State() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start launches the connect/read/reconnect loop.
func (s *Supervisor) Start() {
	s.wg.Add(1)
	go s.run()
	s.logger.Info("Channel supervisor started",
		zap.String("reader", s.identity.ReaderName),
		zap.String("url", s.wsURL),
	)
}

// Close tears the supervisor down: stop and drain the run loop, then stop
// and release the reader session best-effort. The loop must be fully dead
// before the release commands go out, so a connect racing the close can
// never re-reserve a reader that was just released. Teardown failures are
// logged and never block shutdown.
func (s *Supervisor) Close() {
	s.mu.Lock()
	select {
	case <-s.stopChan:
		s.mu.Unlock()
		return
	default:
		close(s.stopChan)
	}
	conn := s.conn
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	s.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()
	if err := s.controller.StopAndRelease(ctx); err != nil {
		s.logger.Warn("Reader teardown failed during supervisor close",
			zap.Error(err),
			zap.String("reader", s.identity.ReaderName),
		)
	}

	s.logger.Info("Channel supervisor closed",
		zap.String("reader", s.identity.ReaderName),
	)
}

func (s *Supervisor) run() {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopChan:
			return
		default:
		}

		if !s.connectAndServe() {
			return
		}

		// Interruptible fixed-delay backoff before reconnecting
		select {
		case <-time.After(s.reconnectDelay):
		case <-s.stopChan:
			return
		}
	}
}

// connectAndServe runs one connection attempt and its read pump. Returns
// false when the supervisor is shutting down.
func (s *Supervisor) connectAndServe() bool {
	s.setState(StateConnecting)

	conn, _, err := s.dialer.Dial(s.wsURL, nil)
	if err != nil {
		s.logger.Warn("Push channel connect failed",
			zap.Error(err),
			zap.String("url", s.wsURL),
		)
		s.reportError(fmt.Sprintf("sin conexión con el servidor: %v", err))
		s.setState(StateDisconnected)
		return !s.stopped()
	}

	// Close may have run while the dial was in flight. Its conn snapshot
	// was nil then, so the connection is ours to close, and the reader must
	// not be re-reserved after StopAndRelease.
	s.mu.Lock()
	if s.stopped() {
		s.state = StateDisconnected
		s.mu.Unlock()
		_ = conn.Close()
		return false
	}
	s.conn = conn
	s.state = StateConnected
	s.mu.Unlock()

	// Connected: clear any stale connection error, establish the reader
	// session, then join the per-reader topic. Reader lifecycle failures
	// surface through the controller's own callback; the subscription
	// still goes out so backend state pushes reach the terminal.
	s.reportError("")
	if err := s.controller.ReserveAndStart(context.Background()); err != nil {
		s.logger.Warn("Reader session start failed on connect",
			zap.Error(err),
			zap.String("reader", s.identity.ReaderName),
		)
	}

	if err := s.subscribe(conn); err != nil {
		s.logger.Error("Topic subscription failed", zap.Error(err))
		s.reportError("no se pudo suscribir al canal del lector")
	}

	s.readPump(conn)

	s.mu.Lock()
	s.conn = nil
	s.state = StateDisconnected
	s.mu.Unlock()

	// The backend check-in session cannot be trusted across a dropped
	// connection; readiness comes back with the next ReserveAndStart.
	s.controller.MarkNotReady()

	if s.stopped() {
		return false
	}
	s.reportError("conexión con el servidor perdida")
	return true
}

func (s *Supervisor) subscribe(conn *websocket.Conn) error {
	frame := subscribeFrame{
		Type:  "SUBSCRIBE",
		Topic: "/topic/checador/" + s.identity.ReaderName,
	}
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	if err := conn.WriteJSON(frame); err != nil {
		return fmt.Errorf("failed to send subscribe frame: %w", err)
	}
	s.logger.Info("Subscribed to reader topic", zap.String("topic", frame.Topic))
	return nil
}

func (s *Supervisor) readPump(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !s.stopped() && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("Push channel read error", zap.Error(err))
			}
			_ = conn.Close()
			return
		}
		s.dispatch(data)
	}
}

// dispatch classifies one inbound message by its type discriminant and
// forwards the typed variant. Malformed bodies are logged and reported;
// the channel continues.
func (s *Supervisor) dispatch(data []byte) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		s.logger.Error("Malformed push message",
			zap.Error(err),
			zap.ByteString("body", data),
		)
		s.reportError("mensaje del servidor no válido")
		return
	}

	if probe.Type == models.MessageTypeFullState {
		var snapshot models.AttendanceSnapshot
		if err := json.Unmarshal(data, &snapshot); err != nil {
			s.logger.Error("Malformed attendance snapshot", zap.Error(err))
			s.reportError("mensaje del servidor no válido")
			return
		}
		if s.callbacks.OnSnapshot != nil {
			s.callbacks.OnSnapshot(snapshot)
		}
		return
	}

	var event models.CheckinEvent
	if err := json.Unmarshal(data, &event); err != nil {
		s.logger.Error("Malformed checkin event", zap.Error(err))
		s.reportError("mensaje del servidor no válido")
		return
	}
	if s.callbacks.OnCheckin != nil {
		s.callbacks.OnCheckin(event)
	}
}

func (s *Supervisor) reportError(msg string) {
	if s.callbacks.OnConnectionError != nil {
		s.callbacks.OnConnectionError(msg)
	}
}

func (s *Supervisor) setState(state ConnState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Supervisor) stopped() bool {
	select {
	case <-s.stopChan:
		return true
	default:
		return false
	}
}
