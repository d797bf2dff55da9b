package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/sonar/internal/common"
	"github.com/ternarybob/sonar/internal/interfaces"
	"github.com/ternarybob/sonar/internal/models"
)

// Sweep reconciles results parked on async provider handles. It polls each
// handle and performs only running -> terminal transitions; results the
// engine already resolved are left alone.
type Sweep struct {
	storage  interfaces.StorageManager
	registry ChainBuilder
	events   interfaces.EventService
	logger   arbor.ILogger

	pollInterval time.Duration
	maxHandleAge time.Duration

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewSweep creates the async result sweep
func NewSweep(storage interfaces.StorageManager, registry ChainBuilder, events interfaces.EventService, config *common.Config, logger arbor.ILogger) *Sweep {
	return &Sweep{
		storage:      storage,
		registry:     registry,
		events:       events,
		logger:       logger,
		pollInterval: common.ParseDuration(config.Sweep.PollInterval, time.Minute),
		maxHandleAge: common.ParseDuration(config.Sweep.MaxHandleAge, 30*time.Minute),
	}
}

// Start launches the sweep loop
func (s *Sweep) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("sweep already running")
	}
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	common.SafeGoWithContext(ctx, s.logger, "resultSweep", func() {
		s.loop(ctx)
	})

	s.logger.Info().
		Str("poll_interval", s.pollInterval.String()).
		Str("max_handle_age", s.maxHandleAge.String()).
		Msg("Result sweep started")

	return nil
}

// Stop halts the sweep loop and waits for the current pass to finish
func (s *Sweep) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	done := s.done
	s.mu.Unlock()

	<-done
	s.logger.Info().Msg("Result sweep stopped")
}

func (s *Sweep) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if resolved, err := s.SweepOnce(ctx); err != nil {
				s.logger.Warn().Err(err).Msg("Sweep pass failed")
			} else if resolved > 0 {
				s.logger.Info().Int("resolved", resolved).Msg("Sweep resolved parked results")
			}
		}
	}
}

// SweepOnce performs a single reconciliation pass over every running result
// carrying a handle. Returns the number of results moved to a terminal state.
func (s *Sweep) SweepOnce(ctx context.Context) (int, error) {
	parked, err := s.storage.ResultStorage().ListRunningWithHandle(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list parked results: %w", err)
	}

	resolved := 0
	for _, result := range parked {
		if ctx.Err() != nil {
			return resolved, ctx.Err()
		}
		if s.resolveResult(ctx, result) {
			resolved++
		}
	}

	return resolved, nil
}

// resolveResult polls one parked result's handle. Returns true when the
// result reached a terminal state.
func (s *Sweep) resolveResult(ctx context.Context, result *models.ExecutionResult) bool {
	age := time.Since(result.CreatedAt)
	if age > s.maxHandleAge {
		msg := fmt.Sprintf("handle %s unresolved after %s, giving up", result.Handle, age.Round(time.Second))
		return s.failParked(ctx, result, msg)
	}

	poller, err := s.registry.AsyncPoller(ctx, result.Provider)
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("result_id", result.ID).
			Str("provider", result.Provider).
			Msg("No poller for parked result provider")
		return false
	}

	state, err := poller.Poll(ctx, result.Handle)
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("result_id", result.ID).
			Str("handle", result.Handle).
			Msg("Handle poll failed, will retry next pass")
		return false
	}

	if !state.Done {
		return false
	}

	if state.Error != "" {
		return s.failParked(ctx, result, state.Error)
	}

	if err := s.storage.ResultStorage().CompleteRunning(ctx, result.ID, state.RawAnswer); err != nil {
		s.logger.Warn().Err(err).Str("result_id", result.ID).Msg("Could not complete parked result")
		return false
	}

	s.logger.Info().
		Str("result_id", result.ID).
		Str("handle", result.Handle).
		Msg("Parked result completed")
	s.publishResolved(ctx, result.ID)

	return true
}

func (s *Sweep) failParked(ctx context.Context, result *models.ExecutionResult, errorMsg string) bool {
	if err := s.storage.ResultStorage().FailRunning(ctx, result.ID, errorMsg); err != nil {
		s.logger.Warn().Err(err).Str("result_id", result.ID).Msg("Could not fail parked result")
		return false
	}

	s.logger.Warn().
		Str("result_id", result.ID).
		Str("handle", result.Handle).
		Str("error", errorMsg).
		Msg("Parked result failed")
	s.publishResolved(ctx, result.ID)

	return true
}

func (s *Sweep) publishResolved(ctx context.Context, resultID string) {
	if s.events == nil {
		return
	}

	updated, err := s.storage.ResultStorage().GetResult(ctx, resultID)
	if err != nil {
		return
	}
	if err := s.events.Publish(ctx, interfaces.Event{Type: interfaces.EventResultUpdated, Payload: updated}); err != nil {
		s.logger.Warn().Err(err).Str("result_id", resultID).Msg("Failed to publish result event")
	}
}
