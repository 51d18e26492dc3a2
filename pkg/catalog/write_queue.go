package catalog

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/discolog/discolog/pkg/logger"
)

var wqLog *logrus.Entry

func init() {
	wqLog = logger.WithName("write-queue")
}

// WriteQueue serializes all catalog mutations. SQLite supports a single
// writer; concurrent write attempts fail with "database is locked". Funneling
// every mutation through one goroutine removes the contention while still
// letting callers (the scanner's presence batches in particular) submit from
// many goroutines at once.
type WriteQueue struct {
	db      *sql.DB
	queue   chan writeRequest
	done    chan struct{}
	wg      sync.WaitGroup
	started bool
	mu      sync.Mutex
}

type writeRequest struct {
	operation func(db *sql.DB) error
	result    chan error
}

// WriteQueueConfig configures the write queue behavior.
type WriteQueueConfig struct {
	// QueueSize is the buffer size for pending write requests (default: 100).
	QueueSize int
}

// DefaultWriteQueueConfig returns sensible defaults.
func DefaultWriteQueueConfig() *WriteQueueConfig {
	return &WriteQueueConfig{QueueSize: 100}
}

// NewWriteQueue creates a write queue for the given database connection.
func NewWriteQueue(db *sql.DB, config *WriteQueueConfig) *WriteQueue {
	if config == nil {
		config = DefaultWriteQueueConfig()
	}
	return &WriteQueue{
		db:    db,
		queue: make(chan writeRequest, config.QueueSize),
		done:  make(chan struct{}),
	}
}

// Start begins processing write requests. Must be called before Submit.
func (wq *WriteQueue) Start() {
	wq.mu.Lock()
	defer wq.mu.Unlock()

	if wq.started {
		return
	}
	wq.started = true
	wq.wg.Add(1)
	go wq.worker()

	wqLog.Debug("Write queue started")
}

// Stop shuts the queue down, draining pending writes first.
func (wq *WriteQueue) Stop() {
	wq.mu.Lock()
	if !wq.started {
		wq.mu.Unlock()
		return
	}
	wq.started = false
	wq.mu.Unlock()

	close(wq.done)
	wq.wg.Wait()

	wqLog.Debug("Write queue stopped")
}

// Submit queues a write operation and waits for it to complete.
func (wq *WriteQueue) Submit(operation func(db *sql.DB) error) error {
	wq.mu.Lock()
	if !wq.started {
		wq.mu.Unlock()
		return fmt.Errorf("write queue not started")
	}
	wq.mu.Unlock()

	result := make(chan error, 1)

	select {
	case wq.queue <- writeRequest{operation: operation, result: result}:
	case <-wq.done:
		return fmt.Errorf("write queue is shutting down")
	}

	// Every enqueued request is answered, by the worker or by the shutdown
	// drain, so waiting unconditionally cannot hang.
	return <-result
}

// SubmitTx queues a write operation that runs within a transaction, committed
// on success and rolled back on error.
func (wq *WriteQueue) SubmitTx(operation func(tx *sql.Tx) error) error {
	return wq.Submit(func(db *sql.DB) error {
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}

		if err := operation(tx); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				wqLog.WithError(rbErr).Error("Failed to rollback transaction after error")
			}
			return err
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil
	})
}

func (wq *WriteQueue) worker() {
	defer wq.wg.Done()

	for {
		select {
		case req := <-wq.queue:
			req.result <- req.operation(wq.db)
		case <-wq.done:
			wq.drain()
			return
		}
	}
}

// drain processes requests still queued at shutdown.
func (wq *WriteQueue) drain() {
	for {
		select {
		case req := <-wq.queue:
			req.result <- req.operation(wq.db)
		default:
			return
		}
	}
}

// Len returns the current number of pending write requests.
func (wq *WriteQueue) Len() int {
	return len(wq.queue)
}
