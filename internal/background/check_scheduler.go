package background

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/itp-watch/itp-monitor-v2/internal/database"
	"github.com/itp-watch/itp-monitor-v2/internal/messaging"
	"github.com/itp-watch/itp-monitor-v2/internal/models"
	"github.com/itp-watch/itp-monitor-v2/internal/rar"
)

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

const (
	// DefaultCheckInterval is how often a vehicle is re-checked (30 days)
	DefaultCheckInterval = 720 * time.Hour

	// failed checks are retried much sooner than the regular interval
	failureRetryDelay = 1 * time.Hour

	// how often the scheduler looks for due vehicles
	defaultPollInterval = 1 * time.Hour

	// a single check, captcha retries included, gets this long
	checkTimeout = 3 * time.Minute

	// time allowed for the database writes after a failed check
	failureWriteTimeout = 30 * time.Second
)

// Checker runs one full lookup for a VIN. The rar.Client implements this.
type Checker interface {
	Lookup(ctx context.Context, vin string) (*rar.Result, error)
}

type CheckJob struct {
	ID        string
	Vin       string
	Forced    bool
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CheckScheduler owns all ITP checking: it queues due vehicles on a ticker,
// accepts forced checks from the HTTP API, and processes one check at a time.
type CheckScheduler struct {
	checker            Checker
	dbClient           *database.DatabaseClient
	stateSink          messaging.StateSink
	queueChan          chan *CheckJob
	stopChan           chan bool
	processingWg       sync.WaitGroup
	activelyProcessing bool
	mu                 sync.RWMutex
	QueuedChecks       atomic.Int64
	maxQueued          int64
	checkInterval      time.Duration
	pollInterval       time.Duration
}

func NewCheckScheduler(
	checker Checker,
	dbClient *database.DatabaseClient,
	stateSink messaging.StateSink,
	checkInterval time.Duration,
) *CheckScheduler {
	if checkInterval <= 0 {
		checkInterval = DefaultCheckInterval
	}

	return &CheckScheduler{
		checker:       checker,
		dbClient:      dbClient,
		stateSink:     stateSink,
		queueChan:     make(chan *CheckJob, 100),
		stopChan:      make(chan bool),
		processingWg:  sync.WaitGroup{},
		mu:            sync.RWMutex{},
		maxQueued:     100,
		checkInterval: checkInterval,
		pollInterval:  defaultPollInterval,
	}
}

// QueueCheck puts a check for the given VIN into the queue. Forced checks come
// from the HTTP API, scheduled ones from the due-vehicle ticker.
func (cs *CheckScheduler) QueueCheck(vin string, forced bool) (*CheckJob, error) {
	if cs.QueuedChecks.Load() >= cs.maxQueued {
		return nil, fmt.Errorf("check queue is full")
	}

	id := fmt.Sprintf("check_%d", time.Now().UnixNano())
	job := &CheckJob{
		ID:        id,
		Vin:       vin,
		Forced:    forced,
		Status:    StatusPending,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	cs.QueuedChecks.Add(1)
	log.Println("check put in queue, ", job.ID)
	cs.queueChan <- job

	return job, nil
}

func (cs *CheckScheduler) jobQueueListener(ctx context.Context) {
	defer cs.processingWg.Done()

	for {
		// Ensures that only 1 check is being processed at a time, the RAR site
		// does not appreciate parallel captcha rounds
		if cs.currentlyProcessing() {
			time.Sleep(5 * time.Second)
		}
		select {
		case <-ctx.Done():
			return
		case <-cs.stopChan:
			return
		case job := <-cs.queueChan:
			log.Printf("Starting check %v for VIN %v", job.ID, job.Vin)
			if err := cs.processCheckJob(job); err != nil {
				log.Printf("Failed to check VIN %s: %v", job.Vin, err)
			}
			cs.QueuedChecks.Add(-1)
			log.Printf("Completed check %v", job.ID)
		}
	}
}

func (cs *CheckScheduler) dueVehicleListener(ctx context.Context) {
	defer cs.processingWg.Done()

	ticker := time.NewTicker(cs.pollInterval)
	defer ticker.Stop()

	// catch up right away so a restart doesn't postpone overdue vehicles
	cs.queueDueVehicles(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-cs.stopChan:
			return
		case <-ticker.C:
			cs.queueDueVehicles(ctx)
		}
	}
}

func (cs *CheckScheduler) queueDueVehicles(ctx context.Context) {
	if cs.dbClient == nil {
		return
	}

	due, err := cs.dbClient.VehicleUseCase().GetDueVehicles(ctx, time.Now())
	if err != nil {
		log.Printf("could not list due vehicles: %v", err)
		return
	}

	for i := range due {
		if _, err := cs.QueueCheck(due[i].Vin, false); err != nil {
			log.Printf("could not queue check for %s: %v", due[i].Vin, err)
		}
	}
}

func (cs *CheckScheduler) processCheckJob(job *CheckJob) error {
	ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
	defer cancel()

	cs.setCurrentlyProcessing(true)
	defer cs.setCurrentlyProcessing(false)
	cs.updateJobStatus(job, StatusProcessing)

	result, err := cs.checker.Lookup(ctx, job.Vin)
	now := time.Now()

	if err != nil {
		cs.recordFailure(job, now, err)
		cs.updateJobStatus(job, StatusFailed)
		return err
	}

	check := &models.InspectionCheckModel{
		Vin:            result.Vin,
		Status:         result.Status,
		ExpirationDate: result.ExpirationDate,
		CheckedAt:      result.CheckedAt,
		Attempts:       result.Attempts,
	}

	if cs.dbClient != nil {
		if _, err := cs.dbClient.InspectionCheckUseCase().RecordCheck(ctx, check); err != nil {
			log.Printf("could not record check for %s: %v", result.Vin, err)
		}

		inspectionResult := &models.InspectionResultModel{
			Status:         result.Status,
			ExpirationDate: result.ExpirationDate,
			LastChecked:    result.CheckedAt,
			Attempts:       result.Attempts,
		}
		if err := cs.dbClient.VehicleUseCase().RecordCheckResult(ctx, result.Vin, inspectionResult, now.Add(cs.checkInterval)); err != nil {
			log.Printf("could not update vehicle %s: %v", result.Vin, err)
		}
	}

	cs.fanOutCheck(check, messaging.TopicCheckCompleted)
	cs.updateJobStatus(job, StatusCompleted)
	return nil
}

// recordFailure keeps the last known good result untouched, writes an Unknown
// entry into the history, and reschedules the vehicle for an early retry.
func (cs *CheckScheduler) recordFailure(job *CheckJob, now time.Time, checkErr error) {
	// the job context may be what killed the check (expired checkTimeout),
	// the bookkeeping writes need a live one
	ctx, cancel := context.WithTimeout(context.Background(), failureWriteTimeout)
	defer cancel()

	attempts := 0
	var lookupErr *rar.LookupError
	if errors.As(checkErr, &lookupErr) {
		attempts = lookupErr.Attempts
	}

	errText := checkErr.Error()
	check := &models.InspectionCheckModel{
		Vin:            job.Vin,
		Status:         models.StatusUnknown,
		ExpirationDate: models.UnknownExpiration,
		CheckedAt:      now,
		Attempts:       attempts,
		Error:          &errText,
	}

	if cs.dbClient != nil {
		if _, err := cs.dbClient.InspectionCheckUseCase().RecordCheck(ctx, check); err != nil {
			log.Printf("could not record failed check for %s: %v", job.Vin, err)
		}
		if err := cs.dbClient.VehicleUseCase().RecordCheckFailure(ctx, job.Vin, now.Add(failureRetryDelay)); err != nil {
			log.Printf("could not reschedule vehicle %s: %v", job.Vin, err)
		}
	}

	cs.fanOutCheck(check, messaging.TopicCheckFailed)
}

// fanOutCheck sends the finished check to all result subscribers. These are
// the workers relevant to one check. You can attach more subscribers here if
// need be.
func (cs *CheckScheduler) fanOutCheck(check *models.InspectionCheckModel, topic string) {
	subscriberMapping := make(map[string]messaging.SubscriberFunc)
	subscriberMapping["print"] = messaging.PrintResults
	if cs.stateSink != nil {
		subscriberMapping["mqtt_state"] = messaging.NewStateSubscriber(cs.stateSink)
	}

	publisher := messaging.NewPublisher(true)
	subscriberNames := make([]string, len(subscriberMapping))
	idx := 0
	for subscriberName, function := range subscriberMapping {
		subscriberNames[idx] = subscriberName
		publisher.Subscribe(idx+1, subscriberName, function)
		idx++
	}

	publisher.Publish(&messaging.CheckEvent{Topic: topic, Check: check}, subscriberNames)

	// Need to make sure to close the subscribers or our code will hang and wait forever
	publisher.CloseAllSubscribers()
	publisher.WaitForClosure()
}

func (cs *CheckScheduler) updateJobStatus(job *CheckJob, status string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	job.Status = status
	job.UpdatedAt = time.Now()
}

func (cs *CheckScheduler) setCurrentlyProcessing(flag bool) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.activelyProcessing = flag
}

func (cs *CheckScheduler) currentlyProcessing() bool {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.activelyProcessing
}

func (cs *CheckScheduler) Start(ctx context.Context) {
	cs.processingWg.Add(2)
	go cs.jobQueueListener(ctx)
	go cs.dueVehicleListener(ctx)
}

func (cs *CheckScheduler) Stop() {
	close(cs.stopChan)
	cs.processingWg.Wait()
}

func (cs *CheckScheduler) MaxQueuedChecks() int64 {
	return cs.maxQueued
}

func (cs *CheckScheduler) CheckInterval() time.Duration {
	return cs.checkInterval
}

// ActivelyProcessing reports whether a check is running right now
func (cs *CheckScheduler) ActivelyProcessing() bool {
	return cs.currentlyProcessing()
}
