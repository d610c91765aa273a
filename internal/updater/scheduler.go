package updater

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"muniapi/internal/updater/metrics"
	"muniapi/pkg/domain"
)

// State is the scheduler lifecycle position.
type State int32

const (
	StateStopped State = iota
	StateIdle
	StateDraining
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDraining:
		return "draining"
	default:
		return "stopped"
	}
}

// Processor refreshes one entity. Returned errors are logged and the request
// is dropped; the scheduler never retries.
type Processor interface {
	Process(ctx context.Context, req Request) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, req Request) error

func (f ProcessorFunc) Process(ctx context.Context, req Request) error {
	return f(ctx, req)
}

// AcceptFunc decides whether a request may be queued at all. Requests it
// rejects are skipped silently, e.g. when their source has no settings.
type AcceptFunc func(Request) bool

const (
	defaultInterval  = time.Second
	defaultInboxSize = 256
)

// Scheduler owns the queue and drain loop of one entity type.
type Scheduler struct {
	entityType domain.EntityType
	interval   time.Duration
	processor  Processor
	accept     AcceptFunc
	queue      *Queue
	inbox      chan Request

	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer

	state   atomic.Int32
	stopped atomic.Bool
	drainMu sync.Mutex

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

type Option func(*Scheduler)

func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithInboxSize(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.inbox = make(chan Request, n)
		}
	}
}

func WithAccept(accept AcceptFunc) Option {
	return func(s *Scheduler) {
		s.accept = accept
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Scheduler) {
		s.tracer = t
	}
}

// NewScheduler creates a stopped scheduler for one entity type.
func NewScheduler(t domain.EntityType, processor Processor, opts ...Option) *Scheduler {
	s := &Scheduler{
		entityType: t,
		interval:   defaultInterval,
		processor:  processor,
		queue:      NewQueue(),
		inbox:      make(chan Request, defaultInboxSize),
		logger:     slog.Default(),
		tracer:     otel.Tracer("muniapi/updater"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("entity_type", t.String())
	return s
}

func (s *Scheduler) EntityType() domain.EntityType { return s.entityType }

func (s *Scheduler) Interval() time.Duration { return s.interval }

func (s *Scheduler) State() State { return State(s.state.Load()) }

// Pending returns the queued requests in service order.
func (s *Scheduler) Pending() []Request { return s.queue.Snapshot() }

// Inbox is the channel producers publish into. A pump goroutine moves its
// messages into the queue while the scheduler runs.
func (s *Scheduler) Inbox() chan<- Request { return s.inbox }

// Start launches the drain loop and inbox pump and returns immediately.
// Starting a running scheduler is a no-op; a stopped one may be restarted
// once Wait has returned.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stopped.Store(false)
	s.state.Store(int32(StateIdle))
	s.stopCh = make(chan struct{})

	s.wg.Add(2)
	go s.loop(ctx, s.stopCh)
	go s.pump(ctx, s.stopCh)

	s.logger.InfoContext(ctx, "update scheduler started", "interval", s.interval.String())
}

// Stop asks the loop to exit. A request being processed runs to completion;
// no further tick starts. Stop does not block, use Wait for that.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	s.stopped.Store(true)
	s.state.CompareAndSwap(int32(StateIdle), int32(StateStopped))
	close(s.stopCh)
}

// Wait blocks until the loop and pump have exited.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Enqueue queues req with dedup and priority promotion semantics.
// Requests arriving after Stop are dropped with ErrStopped.
func (s *Scheduler) Enqueue(req Request) error {
	if req.Target.Type != s.entityType {
		return ErrWrongEntityType
	}
	if s.stopped.Load() {
		return ErrStopped
	}
	if s.accept != nil && !s.accept(req) {
		s.logger.Debug("update request skipped, source not configured",
			"target", req.Target.Key(),
		)
		return nil
	}
	if s.queue.Push(req) && s.metrics != nil {
		s.metrics.IncrementEnqueued(s.entityType.String())
	}
	s.observeDepth()
	return nil
}

func (s *Scheduler) loop(ctx context.Context, stopCh <-chan struct{}) {
	defer s.wg.Done()
	defer s.state.Store(int32(StateStopped))

	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-timer.C:
		}
		if s.stopped.Load() {
			return
		}
		s.DrainOnce(ctx)
		// rearm only after the tick finished so ticks never overlap
		timer.Reset(s.interval)
	}
}

func (s *Scheduler) pump(ctx context.Context, stopCh <-chan struct{}) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case req := <-s.inbox:
			if err := s.Enqueue(req); err != nil {
				s.logger.DebugContext(ctx, "update request rejected",
					"target", req.Target.Key(),
					"error", err,
				)
			}
		}
	}
}

// DrainOnce pops at most one request and processes it synchronously.
// It reports whether a request was taken. Concurrent callers are serialized.
func (s *Scheduler) DrainOnce(ctx context.Context) bool {
	s.drainMu.Lock()
	defer s.drainMu.Unlock()

	req, ok := s.queue.Pop()
	if !ok {
		s.observeTick(metrics.OutcomeIdle)
		return false
	}
	s.observeDepth()

	prev := State(s.state.Swap(int32(StateDraining)))
	defer func() {
		s.state.Store(int32(prev))
		if s.stopped.Load() {
			s.state.Store(int32(StateStopped))
		}
	}()

	ctx, span := s.tracer.Start(ctx, "updater.Drain", trace.WithAttributes(
		attribute.String("entity.type", s.entityType.String()),
		attribute.String("entity.target", req.Target.Key()),
		attribute.Bool("update.priority", req.Priority),
	))
	defer span.End()

	start := time.Now()
	err := s.process(ctx, req)
	if s.metrics != nil {
		s.metrics.ObserveDrainDuration(s.entityType.String(), time.Since(start).Seconds())
	}
	if err == nil {
		s.observeTick(metrics.OutcomeRefreshed)
		return true
	}

	kind := ErrorKind(err)
	if kind == KindConfiguration {
		s.logger.DebugContext(ctx, "update skipped, source not configured",
			"target", req.Target.Key(),
		)
		s.observeTick(metrics.OutcomeSkipped)
		return true
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, string(kind))
	s.logger.WarnContext(ctx, "update request dropped",
		"target", req.Target.Key(),
		"error_kind", string(kind),
		"error", err,
	)
	s.observeTick(metrics.OutcomeFailed)
	if s.metrics != nil {
		s.metrics.ObserveFailure(s.entityType.String(), string(kind))
	}
	return true
}

// process runs the processor, turning a panic into a dropped request so the
// loop keeps its timer.
func (s *Scheduler) process(ctx context.Context, req Request) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrProcessorPanic, r)
		}
	}()
	return s.processor.Process(ctx, req)
}

func (s *Scheduler) observeTick(outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveTick(s.entityType.String(), outcome)
	}
}

func (s *Scheduler) observeDepth() {
	if s.metrics != nil {
		s.metrics.SetQueueDepth(s.entityType.String(), s.queue.Len())
	}
}
