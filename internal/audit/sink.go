package audit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"adminhub.org/internal/obs"
)

// RecordStore persists audit records.
type RecordStore interface {
	Insert(ctx context.Context, rec *Record) error
}

// Sink decouples request handling from audit persistence: records go through
// a bounded queue drained by one background worker. A full queue drops the
// record rather than stalling the request path.
type Sink struct {
	store RecordStore
	queue chan *Record
	log   *zap.Logger
	done  chan struct{}
}

// NewSink constructs a Sink and starts its worker.
func NewSink(store RecordStore, queueSize int, log *zap.Logger) *Sink {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &Sink{
		store: store,
		queue: make(chan *Record, queueSize),
		log:   log.Named("audit"),
		done:  make(chan struct{}),
	}
	go s.run()
	return s
}

// Enqueue hands a record to the worker. Never blocks; on overflow the record
// is dropped and counted.
func (s *Sink) Enqueue(rec *Record) {
	select {
	case s.queue <- rec:
		obs.AuditQueueDepth(len(s.queue))
	default:
		obs.AuditDropped()
		s.log.Warn("audit queue full, record dropped",
			zap.String("path", rec.Path), zap.String("method", rec.Method))
	}
}

func (s *Sink) run() {
	defer close(s.done)
	for rec := range s.queue {
		// Detached context: the originating request is long gone.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.store.Insert(ctx, rec); err != nil {
			s.log.Error("audit insert failed",
				zap.String("path", rec.Path), zap.Error(err))
		}
		cancel()
		obs.AuditQueueDepth(len(s.queue))
	}
}

// Close stops accepting records and waits for the queue to drain, up to the
// context deadline.
func (s *Sink) Close(ctx context.Context) error {
	close(s.queue)
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
