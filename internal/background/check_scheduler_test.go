package background

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/itp-watch/itp-monitor-v2/internal/models"
	"github.com/itp-watch/itp-monitor-v2/internal/rar"
	"github.com/stretchr/testify/assert"
)

// mockChecker returns a canned result without touching the network
type mockChecker struct {
	shouldFail bool
}

func (m *mockChecker) Lookup(ctx context.Context, vin string) (*rar.Result, error) {
	if m.shouldFail {
		return nil, &rar.LookupError{Attempts: 3, Err: errors.New("captcha OCR failed")}
	}
	return &rar.Result{
		Vin:            vin,
		Status:         models.StatusValid,
		ExpirationDate: "2026-05-04",
		CheckedAt:      time.Now(),
		Attempts:       1,
	}, nil
}

// recordingSink captures what would be published to MQTT
type recordingSink struct {
	mu     sync.Mutex
	checks []*models.InspectionCheckModel
}

func (s *recordingSink) PublishCheck(ctx context.Context, check *models.InspectionCheckModel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks = append(s.checks, check)
	return nil
}

func (s *recordingSink) all() []*models.InspectionCheckModel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.InspectionCheckModel{}, s.checks...)
}

func TestCheckScheduler_QueueAndProcess(t *testing.T) {
	cs := NewCheckScheduler(&mockChecker{}, nil, nil, 0)

	job, err := cs.QueueCheck("WVWZZZ1JZXW000001", true)
	assert.NoError(t, err)
	assert.NotNil(t, job)
	assert.Equal(t, StatusPending, job.Status)
	assert.Equal(t, int64(1), cs.QueuedChecks.Load())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cs.Start(ctx)
	defer cs.Stop()

	// Give time for job processing (not ideal but works for test simplicity)
	time.Sleep(500 * time.Millisecond)

	assert.Equal(t, StatusCompleted, job.Status)
	assert.Equal(t, int64(0), cs.QueuedChecks.Load())
}

func TestCheckScheduler_FailedCheck(t *testing.T) {
	sink := &recordingSink{}
	cs := NewCheckScheduler(&mockChecker{shouldFail: true}, nil, sink, 0)

	job, err := cs.QueueCheck("WVWZZZ1JZXW000001", true)
	assert.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cs.Start(ctx)
	defer cs.Stop()

	time.Sleep(500 * time.Millisecond)

	assert.Equal(t, StatusFailed, job.Status)

	// the failure still surfaces as an Unknown entry with the rounds that ran
	checks := sink.all()
	if assert.Len(t, checks, 1) {
		assert.Equal(t, models.StatusUnknown, checks[0].Status)
		assert.Equal(t, models.UnknownExpiration, checks[0].ExpirationDate)
		assert.Equal(t, 3, checks[0].Attempts)
		if assert.NotNil(t, checks[0].Error) {
			assert.Contains(t, *checks[0].Error, "captcha OCR failed")
		}
	}
}

func TestCheckScheduler_DefaultInterval(t *testing.T) {
	cs := NewCheckScheduler(&mockChecker{}, nil, nil, 0)
	assert.Equal(t, DefaultCheckInterval, cs.CheckInterval())

	custom := NewCheckScheduler(&mockChecker{}, nil, nil, 24*time.Hour)
	assert.Equal(t, 24*time.Hour, custom.CheckInterval())
}

func TestCheckScheduler_NotProcessingAtRest(t *testing.T) {
	cs := NewCheckScheduler(&mockChecker{}, nil, nil, 0)
	assert.False(t, cs.ActivelyProcessing())
	assert.Equal(t, int64(100), cs.MaxQueuedChecks())
}
