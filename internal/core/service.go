// Package core implements the transactional model service: a single writer
// goroutine that runs transaction and query bodies against a persistence
// context one at a time, plus the wiring that opens the configured context.
package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"modelkit/internal/goid"
	"modelkit/pkg/domain"
)

// DefaultQueueSize is the number of calls that may wait for the writer.
const DefaultQueueSize = 64

const tracerName = "modelkit/internal/core"

var errNilBody = errors.New("modelkit: nil body")

// bodyKey marks the context handed to a running body.
type bodyKey struct{}

type bodyMarker struct {
	svc *Service
	acc *accessor
}

var _ domain.ModelService = (*Service)(nil)

type callKind string

const (
	kindTransaction callKind = "transaction"
	kindQuery       callKind = "query"
)

// Outcome labels recorded on metrics and spans.
const (
	outcomeCommitted        = "committed"
	outcomeRolledBack       = "rolled_back"
	outcomeFailed           = "failed"
	outcomePanicked         = "panicked"
	outcomePersistenceError = "persistence_error"
	outcomeCanceled         = "canceled"
	outcomeOK               = "ok"
)

type call struct {
	ctx   context.Context
	kind  callKind
	tx    func(domain.Accessor) error
	read  func(domain.ReadAccessor) error
	reply chan outcome
}

type outcome struct {
	changes  domain.ChangeSet
	err      error
	panicked bool
	panicVal any
	label    string
}

// Service runs transaction and query bodies against a persistence context on
// a single writer goroutine. Calls are served in submission order and each
// caller blocks until its body has finished and been committed or rolled back.
type Service struct {
	container domain.Context
	logger    domain.Logger
	tracer    trace.Tracer
	metrics   *metrics
	slow      time.Duration

	calls chan *call
	done  chan struct{}

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
	closeErr  error

	worker atomic.Uint64
	depth  atomic.Int32
}

type options struct {
	logger     domain.Logger
	registerer prometheus.Registerer
	tracer     trace.TracerProvider
	queueSize  int
	slow       time.Duration
}

// Option configures a Service.
type Option func(*options)

// WithLogger sets the service logger.
func WithLogger(logger domain.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithRegisterer registers the service metrics on reg instead of a private
// registry. A registerer can host the metrics of one service only.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithTracerProvider sets the provider for transaction and query spans. The
// global otel provider is used by default.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracer = tp }
}

// WithQueueSize sets how many calls may wait for the writer goroutine.
func WithQueueSize(n int) Option {
	return func(o *options) { o.queueSize = n }
}

// WithSlowOperationThreshold logs a warning for bodies running longer than d.
// Zero disables the warning.
func WithSlowOperationThreshold(d time.Duration) Option {
	return func(o *options) { o.slow = d }
}

// NewService starts the writer goroutine for container. The service owns the
// container from now on and closes it in Close.
func NewService(container domain.Context, opts ...Option) *Service {
	o := options{logger: domain.NopLogger()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.queueSize <= 0 {
		o.queueSize = DefaultQueueSize
	}
	if o.registerer == nil {
		o.registerer = prometheus.NewRegistry()
	}
	if o.tracer == nil {
		o.tracer = otel.GetTracerProvider()
	}
	s := &Service{
		container: container,
		logger:    o.logger,
		tracer:    o.tracer.Tracer(tracerName),
		metrics:   newMetrics(o.registerer),
		slow:      o.slow,
		calls:     make(chan *call, o.queueSize),
		done:      make(chan struct{}),
	}
	go s.run()
	return s
}

// Transaction runs work with a read-write accessor and commits its changes
// when it returns nil. See TransactionChanges.
func (s *Service) Transaction(ctx context.Context, work func(domain.Accessor) error) error {
	_, err := s.TransactionChanges(ctx, work)
	return err
}

// TransactionChanges runs work as a transaction and returns the identities the
// commit inserted, updated and deleted.
//
// Changes left uncommitted on the context by an earlier caller are rolled back
// before work starts. A body error rolls back and is returned unchanged. A
// body that calls SetRollbackOnly is rolled back and reported as a success
// with an empty change set. A failed save is rolled back and returned as a
// *domain.PersistenceError. A panic in work, including the one raised for a
// nested transaction, is rolled back and re-raised on the caller's goroutine.
//
// Nesting is detected on the writer goroutine itself and for calls made with
// a context derived from the accessor's Context while the body still runs.
// A body that waits for a goroutine calling the service with an unrelated
// context deadlocks the writer.
func (s *Service) TransactionChanges(ctx context.Context, work func(domain.Accessor) error) (domain.ChangeSet, error) {
	if work == nil {
		return domain.ChangeSet{}, errNilBody
	}
	out := s.submit(ctx, &call{ctx: ctx, kind: kindTransaction, tx: work})
	return out.changes, out.err
}

// Query runs work with a read-only accessor. Nothing is committed; in-place
// edits to fetched records are rolled back when work returns.
func (s *Service) Query(ctx context.Context, work func(domain.ReadAccessor) error) error {
	if work == nil {
		return errNilBody
	}
	return s.submit(ctx, &call{ctx: ctx, kind: kindQuery, read: work}).err
}

// Close waits for queued calls to finish, stops the writer and closes the
// container. Later calls fail with domain.ErrServiceClosed.
func (s *Service) Close() error {
	if s.onWorker() {
		domain.Fatalf("Close called from inside a running transaction or query")
	}
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.calls)
		s.mu.Unlock()
		<-s.done
	})
	return s.closeErr
}

func (s *Service) onWorker() bool {
	return s.worker.Load() == goid.Current()
}

func (s *Service) submit(ctx context.Context, c *call) outcome {
	if s.onWorker() {
		domain.Fatalf("nested %s started from inside a running body", c.kind)
	}
	if m, ok := ctx.Value(bodyKey{}).(*bodyMarker); ok && m.svc == s && !m.acc.closed.Load() {
		domain.Fatalf("nested %s started from a goroutine of a running body", c.kind)
	}
	if err := ctx.Err(); err != nil {
		return outcome{err: err}
	}
	c.reply = make(chan outcome, 1)

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return outcome{err: domain.ErrServiceClosed}
	}
	s.metrics.pending.Inc()
	select {
	case s.calls <- c:
	case <-ctx.Done():
		s.mu.RUnlock()
		s.metrics.pending.Dec()
		return outcome{err: ctx.Err()}
	}
	s.mu.RUnlock()

	out := <-c.reply
	if out.panicked {
		panic(out.panicVal)
	}
	return out
}

func (s *Service) run() {
	defer close(s.done)
	s.worker.Store(goid.Current())
	for c := range s.calls {
		s.metrics.pending.Dec()
		c.reply <- s.execute(c)
	}
	if err := s.container.Close(); err != nil {
		s.closeErr = fmt.Errorf("close container: %w", err)
	}
	s.logger.Debug("model service stopped")
}

func (s *Service) execute(c *call) outcome {
	if err := c.ctx.Err(); err != nil {
		s.metrics.record(c.kind, outcomeCanceled, 0)
		return outcome{err: err, label: outcomeCanceled}
	}
	ctx, span := s.tracer.Start(c.ctx, "modelkit."+string(c.kind),
		trace.WithAttributes(attribute.String("kind", string(c.kind))))
	defer span.End()

	start := time.Now()
	var out outcome
	if c.kind == kindTransaction {
		out = s.runTransaction(ctx, c.tx)
	} else {
		out = s.runQuery(ctx, c.read)
	}
	elapsed := time.Since(start)
	s.metrics.record(c.kind, out.label, elapsed)

	span.SetAttributes(attribute.String("outcome", out.label))
	switch {
	case out.panicked:
		span.SetStatus(codes.Error, fmt.Sprint(out.panicVal))
	case out.err != nil:
		span.RecordError(out.err)
		span.SetStatus(codes.Error, out.err.Error())
	default:
		span.SetAttributes(
			attribute.Int("inserted", len(out.changes.Inserted)),
			attribute.Int("updated", len(out.changes.Updated)),
			attribute.Int("deleted", len(out.changes.Deleted)),
		)
	}
	if s.slow > 0 && elapsed > s.slow {
		s.logger.Warn("slow model operation", "kind", string(c.kind), "outcome", out.label, "duration", elapsed)
	}
	return out
}

func (s *Service) runTransaction(ctx context.Context, work func(domain.Accessor) error) outcome {
	if s.container.HasChanges() {
		s.logger.Warn("rolling back uncommitted changes left before transaction")
		s.container.Rollback()
	}
	acc := s.newBodyAccessor(ctx)
	panicVal, panicked, err := s.invoke(acc, func() error { return work(acc) })
	switch {
	case panicked:
		s.container.Rollback()
		s.logger.Error("transaction body panicked", "panic", fmt.Sprint(panicVal))
		return outcome{panicked: true, panicVal: panicVal, label: outcomePanicked}
	case err != nil:
		s.container.Rollback()
		s.logger.Debug("transaction rolled back", "error", err)
		return outcome{err: err, label: outcomeFailed}
	case acc.rollbackOnly:
		s.container.Rollback()
		s.logger.Debug("transaction rolled back on request")
		return outcome{label: outcomeRolledBack}
	}

	changes, err := s.container.Save(context.WithoutCancel(ctx))
	if err != nil {
		s.container.Rollback()
		s.logger.Error("transaction save failed", "error", err)
		return outcome{err: &domain.PersistenceError{Op: "save", Err: err}, label: outcomePersistenceError}
	}
	s.logger.Debug("transaction committed",
		"inserted", len(changes.Inserted), "updated", len(changes.Updated), "deleted", len(changes.Deleted))
	return outcome{changes: changes, label: outcomeCommitted}
}

func (s *Service) runQuery(ctx context.Context, work func(domain.ReadAccessor) error) outcome {
	acc := s.newBodyAccessor(ctx)
	panicVal, panicked, err := s.invoke(acc, func() error { return work(readView{acc}) })
	if s.container.HasChanges() {
		s.logger.Warn("query left uncommitted changes; rolling back")
	}
	// Releases the records the query fetched as well.
	s.container.Rollback()
	switch {
	case panicked:
		s.logger.Error("query body panicked", "panic", fmt.Sprint(panicVal))
		return outcome{panicked: true, panicVal: panicVal, label: outcomePanicked}
	case err != nil:
		return outcome{err: err, label: outcomeFailed}
	}
	return outcome{label: outcomeOK}
}

func (s *Service) newBodyAccessor(ctx context.Context) *accessor {
	acc := newAccessor(ctx, s.container)
	acc.ctx = context.WithValue(ctx, bodyKey{}, &bodyMarker{svc: s, acc: acc})
	return acc
}

// invoke runs fn at nesting depth one and converts a panic into a value so
// the worker can roll back and hand it to the caller.
func (s *Service) invoke(acc *accessor, fn func() error) (panicVal any, panicked bool, err error) {
	defer func() {
		acc.close()
		if r := recover(); r != nil {
			panicVal, panicked, err = r, true, nil
		}
	}()
	depth := s.depth.Add(1)
	defer s.depth.Add(-1)
	if depth != 1 {
		domain.Fatalf("body started at nesting depth %d", depth-1)
	}
	acc.depth = depth
	acc.owner = goid.Current()
	return nil, false, fn()
}
