package terminal

import (
	"context"
	"sync"
	"time"

	"asistencia/checador-terminal/internal/channel"
	"asistencia/checador-terminal/internal/checkin"
	"asistencia/checador-terminal/internal/client"
	"asistencia/checador-terminal/internal/models"
	"asistencia/checador-terminal/internal/presenter"
	"asistencia/checador-terminal/internal/queue"
	"asistencia/checador-terminal/internal/reader"
	"asistencia/checador-terminal/internal/scanui"
	"asistencia/checador-terminal/internal/store"

	"go.uber.org/zap"
)

const (
	queueInterval   = 60 * time.Second
	queueBatchSize  = 50
	submitTimeout   = 10 * time.Second
	shutdownTimeout = 2 * time.Second
)

// Service orchestrates one terminal session: the reader session controller,
// the push channel supervisor, the snapshot store, the scan display and the
// offline check-in queue. One Service instance per (reader, session)
// identity; an identity change means Stop and a new Service.
type Service struct {
	identity     models.SessionIdentity
	apiClient    *client.APIClient
	controller   *reader.Controller
	supervisor   *channel.Supervisor
	store        *store.Store
	presenter    *presenter.Presenter
	checkinQueue *queue.CheckinQueue // optional
	logger       *zap.Logger

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewService wires a terminal session for one identity. checkinQueue may be
// nil when offline buffering is disabled.
func NewService(
	identity models.SessionIdentity,
	apiClient *client.APIClient,
	st *store.Store,
	pres *presenter.Presenter,
	checkinQueue *queue.CheckinQueue,
	wsURL string,
	reconnectDelay time.Duration,
	logger *zap.Logger,
) *Service {
	s := &Service{
		identity:     identity,
		apiClient:    apiClient,
		store:        st,
		presenter:    pres,
		checkinQueue: checkinQueue,
		logger:       logger,
		stopChan:     make(chan struct{}),
	}

	s.controller = reader.NewController(identity, apiClient, st.SetConnectionError, logger)
	s.supervisor = channel.NewSupervisor(identity, wsURL, s.controller, channel.Callbacks{
		OnCheckin:         s.handleCheckin,
		OnSnapshot:        s.handleSnapshot,
		OnConnectionError: st.SetConnectionError,
	}, reconnectDelay, logger)

	return s
}

// Start establishes the push channel and the queue processor.
func (s *Service) Start() error {
	s.logger.Info("Starting terminal service",
		zap.String("reader", s.identity.ReaderName),
		zap.String("session_id", s.identity.SessionID),
	)

	s.supervisor.Start()
	s.presenter.Ready()

	if s.checkinQueue != nil {
		s.wg.Add(1)
		go s.queueProcessor()
	}

	s.logger.Info("Terminal service started")
	return nil
}

// Stop tears the session down: reader stop/release via the supervisor,
// then timers, then background loops. Safe to call more than once.
func (s *Service) Stop() {
	s.logger.Info("Stopping terminal service")

	select {
	case <-s.stopChan:
		return
	default:
		close(s.stopChan)
	}

	s.supervisor.Close()
	s.presenter.Stop()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		s.logger.Warn("Some goroutines did not stop within timeout")
	}

	s.logger.Info("Terminal service stopped")
}

// Ready reports whether the reader session is established.
func (s *Service) Ready() bool {
	return s.controller.Ready()
}

// ChannelState returns the push channel connection state.
func (s *Service) ChannelState() channel.ConnState {
	return s.supervisor.State()
}

// SubmitCard runs a PIN pad check-in through the same pipeline as the
// biometric channel. A transport-level failure queues the swipe for retry
// when offline buffering is enabled.
func (s *Service) SubmitCard(ctx context.Context, card int64) (models.CheckinEvent, error) {
	s.presenter.ShowScanning()

	resp, err := s.apiClient.SubmitCard(ctx, card)
	if err != nil {
		s.logger.Warn("Card submission failed",
			zap.Error(err),
			zap.String("reader", s.identity.ReaderName),
		)
		if s.checkinQueue != nil {
			if qErr := s.checkinQueue.Enqueue(s.identity.ReaderName, card); qErr != nil {
				s.logger.Error("Failed to queue card swipe", zap.Error(qErr))
			} else {
				s.logger.Info("Card swipe queued for retry", zap.Int64("card", card))
			}
		}
		s.presenter.ShowFailure(scanui.Feedback{
			Message: "sin conexión con el servidor",
		})
		return models.CheckinEvent{}, err
	}

	event := checkin.Normalize(resp, s.identity.ReaderName, s.store.RecommendedAction())
	s.handleCheckin(event)
	return event, nil
}

// handleCheckin feeds one canonical event into the store and the display.
// PIN and biometric events are indistinguishable here.
func (s *Service) handleCheckin(event models.CheckinEvent) {
	s.store.ApplyImmediateFeedback(event)

	fb := scanui.Feedback{
		Message:    displayMessage(event),
		StatusCode: event.StatusCode,
		StatusData: event.ExtraData,
	}

	if checkinSucceeded(event) {
		s.presenter.ShowSuccess(fb)
	} else {
		s.presenter.ShowFailure(fb)
	}
}

func (s *Service) handleSnapshot(snapshot models.AttendanceSnapshot) {
	s.store.ApplyFullSnapshot(snapshot)
}

// checkinSucceeded maps the event onto the success/failed display. An INFO
// response that identified the employee still shows as success so the
// employee context stays visible.
func checkinSucceeded(event models.CheckinEvent) bool {
	switch event.StatusType {
	case models.StatusOK:
		return true
	case models.StatusInfo:
		return event.Identified
	default:
		return false
	}
}

func displayMessage(event models.CheckinEvent) string {
	if event.ErrorMessage != nil && *event.ErrorMessage != "" {
		return *event.ErrorMessage
	}
	if event.FullName != nil {
		return *event.FullName
	}
	return ""
}

// queueProcessor retries queued card swipes in the background
func (s *Service) queueProcessor() {
	defer s.wg.Done()

	ticker := time.NewTicker(queueInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.processQueue()
		case <-s.stopChan:
			// One last pass before stopping
			s.processQueue()
			return
		}
	}
}

// processQueue attempts to submit queued swipes. Replayed swipes do not
// drive the display; they only clear the backlog.
func (s *Service) processQueue() {
	pendingCount, err := s.checkinQueue.GetPendingCount(s.identity.ReaderName)
	if err != nil {
		s.logger.Error("Failed to get pending count", zap.Error(err))
		return
	}
	if pendingCount == 0 {
		return
	}

	s.logger.Debug("Processing queued check-ins",
		zap.Int("pending_count", pendingCount),
	)

	pending, err := s.checkinQueue.Dequeue(s.identity.ReaderName, queueBatchSize)
	if err != nil {
		s.logger.Error("Failed to dequeue check-ins", zap.Error(err))
		return
	}

	var sent []int64
	var failed []int64
	for _, p := range pending {
		ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
		resp, err := s.apiClient.SubmitCard(ctx, p.Card)
		cancel()

		if err != nil {
			// Backend still unreachable; leave the rest for the next pass
			failed = append(failed, p.ID)
			s.logger.Warn("Queued swipe still failing",
				zap.Error(err),
				zap.Int64("card", p.Card),
				zap.Int("retry_count", p.RetryCount),
			)
			break
		}

		sent = append(sent, p.ID)
		s.logger.Info("Queued swipe submitted",
			zap.Int64("card", p.Card),
			zap.String("code", resp.Code),
		)
	}

	if len(failed) > 0 {
		if err := s.checkinQueue.IncrementRetry(failed); err != nil {
			s.logger.Error("Failed to increment retry count", zap.Error(err))
		}
	}
	if len(sent) > 0 {
		if err := s.checkinQueue.Remove(sent); err != nil {
			s.logger.Error("Failed to remove sent check-ins", zap.Error(err))
		}
	}
}

// Status returns the current terminal status for the local state endpoint
func (s *Service) Status() map[string]interface{} {
	status := map[string]interface{}{
		"reader":        s.identity.ReaderName,
		"session_id":    s.identity.SessionID,
		"reader_ready":  s.controller.Ready(),
		"channel_state": string(s.supervisor.State()),
	}
	if s.checkinQueue != nil {
		if pending, err := s.checkinQueue.GetPendingCount(s.identity.ReaderName); err == nil {
			status["pending_checkins"] = pending
		}
	}
	return status
}
