package reader

import (
	"context"
	"fmt"
	"sync"

	"asistencia/checador-terminal/internal/models"

	"go.uber.org/zap"
)

// LifecycleState is the reader session lifecycle state
type LifecycleState string

const (
	StateUnbound   LifecycleState = "unbound"
	StateReserving LifecycleState = "reserving"
	StateStarting  LifecycleState = "starting"
	StateReady     LifecycleState = "ready"
	StateStopping  LifecycleState = "stopping"
	StateReleased  LifecycleState = "released"
	StateError     LifecycleState = "error"
)

// CommandClient issues the four reader-lifecycle commands against the backend
type CommandClient interface {
	ReserveReader(ctx context.Context, reader, sessionID string) error
	ReleaseReader(ctx context.Context, reader, sessionID string) error
	StartCheckin(ctx context.Context, reader, sessionID string) error
	StopCheckin(ctx context.Context, reader, sessionID string) error
}

// Controller owns the reserve/start/stop/release lifecycle of one physical
// reader bound to one terminal session. Start/stop calls are serialized per
// reader by the controller's mutex; a new identity means a new controller.
type Controller struct {
	identity models.SessionIdentity
	client   CommandClient
	onError  func(msg string)
	logger   *zap.Logger

	mu        sync.Mutex
	state     LifecycleState
	ready     bool
	tornDown  bool
	lastError string
}

// NewController creates a controller for one (reader, session) pair. onError
// receives user-facing lifecycle error strings; it may be nil.
func NewController(identity models.SessionIdentity, client CommandClient, onError func(string), logger *zap.Logger) *Controller {
	return &Controller{
		identity: identity,
		client:   client,
		onError:  onError,
		logger:   logger,
		state:    StateUnbound,
	}
}

// Identity returns the (reader, session) pair this controller owns.
func (c *Controller) Identity() models.SessionIdentity {
	return c.identity
}

// Ready reports whether the reader session is established. This is the only
// signal the channel supervisor waits on before the reader topic is
// meaningful to the terminal.
func (c *Controller) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

// MarkNotReady clears the readiness flag without issuing backend commands.
// The channel supervisor calls it when the push connection drops, since the
// check-in session cannot be trusted until the next ReserveAndStart.
func (c *Controller) MarkNotReady() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ready = false
}

// State returns the current lifecycle state.
func (c *Controller) State() LifecycleState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastError returns the last lifecycle error message, if any.
func (c *Controller) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError
}

// ReserveAndStart reserves the reader and starts the backend check-in
// session, in that order. If the start command fails after a successful
// reserve, the reader is released best-effort before the error surfaces,
// so a reserved-but-unused reader is never leaked.
func (c *Controller) ReserveAndStart(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = StateReserving
	c.tornDown = false

	if err := c.client.ReserveReader(ctx, c.identity.ReaderName, c.identity.SessionID); err != nil {
		c.fail(fmt.Sprintf("no se pudo reservar el lector %s", c.identity.ReaderName), err)
		return fmt.Errorf("reserve reader: %w", err)
	}

	c.state = StateStarting
	if err := c.client.StartCheckin(ctx, c.identity.ReaderName, c.identity.SessionID); err != nil {
		// Compensate: release the reservation before surfacing the error
		if relErr := c.client.ReleaseReader(ctx, c.identity.ReaderName, c.identity.SessionID); relErr != nil {
			c.logger.Warn("Failed to release reader after start failure",
				zap.Error(relErr),
				zap.String("reader", c.identity.ReaderName),
			)
		}
		c.fail(fmt.Sprintf("no se pudo iniciar el checador en %s", c.identity.ReaderName), err)
		return fmt.Errorf("start checkin: %w", err)
	}

	c.state = StateReady
	c.ready = true
	c.lastError = ""
	c.logger.Info("Reader session ready",
		zap.String("reader", c.identity.ReaderName),
		zap.String("session_id", c.identity.SessionID),
	)
	return nil
}

// StopAndRelease stops the check-in session and releases the reader.
// Idempotent under retry: a second call is a no-op and any failure it
// would have hit is only logged, never surfaced again.
func (c *Controller) StopAndRelease(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tornDown {
		c.logger.Debug("Reader session already torn down",
			zap.String("reader", c.identity.ReaderName),
		)
		return nil
	}
	c.tornDown = true
	c.ready = false
	c.state = StateStopping

	var firstErr error
	if err := c.client.StopCheckin(ctx, c.identity.ReaderName, c.identity.SessionID); err != nil {
		c.logger.Warn("Failed to stop check-in session",
			zap.Error(err),
			zap.String("reader", c.identity.ReaderName),
		)
		firstErr = fmt.Errorf("stop checkin: %w", err)
	}
	if err := c.client.ReleaseReader(ctx, c.identity.ReaderName, c.identity.SessionID); err != nil {
		c.logger.Warn("Failed to release reader",
			zap.Error(err),
			zap.String("reader", c.identity.ReaderName),
		)
		if firstErr == nil {
			firstErr = fmt.Errorf("release reader: %w", err)
		}
	}

	c.state = StateReleased
	if firstErr != nil {
		c.reportError(fmt.Sprintf("error al liberar el lector %s", c.identity.ReaderName))
	}
	c.logger.Info("Reader session released",
		zap.String("reader", c.identity.ReaderName),
	)
	return firstErr
}

// fail records a lifecycle error and reports it. Caller holds the mutex.
func (c *Controller) fail(msg string, err error) {
	c.state = StateError
	c.ready = false
	c.logger.Error("Reader lifecycle error",
		zap.Error(err),
		zap.String("reader", c.identity.ReaderName),
		zap.String("session_id", c.identity.SessionID),
	)
	c.reportError(msg)
}

func (c *Controller) reportError(msg string) {
	c.lastError = msg
	if c.onError != nil {
		c.onError(msg)
	}
}
