// Package executor runs SQL statements against a data source adapter and
// tracks every execution through PENDING, RUNNING and a terminal status.
package executor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-nlq/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-nlq/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-nlq/pkg/logging"
	"github.com/ekaya-inc/ekaya-nlq/pkg/models"
	"github.com/ekaya-inc/ekaya-nlq/pkg/sql"
)

const (
	stageExecute = "execute"
	stageStatus  = "status"
)

// Config controls execution concurrency, batching and record retention.
type Config struct {
	Workers   int           // Concurrent async executions
	BatchSize int           // Rows fetched between cancellation checkpoints
	Retention time.Duration // How long terminal records stay queryable
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Workers:   8,
		BatchSize: 100,
		Retention: 10 * time.Minute,
	}
}

// Statement is a single SQL statement with its bound parameters. Limit is the
// row limit already rendered into the SQL, zero when there is none.
type Statement struct {
	SQL        string
	Parameters []models.BoundParameter
	Limit      int
}

// StatementFrom builds a Statement from a conversion result.
func StatementFrom(conv *models.SqlConversionResult, limit int) Statement {
	return Statement{SQL: conv.SQL, Parameters: conv.Clone().Parameters, Limit: limit}
}

func (s Statement) args() []any {
	args := make([]any, len(s.Parameters))
	for i, p := range s.Parameters {
		args[i] = p.Value
	}
	return args
}

// allowed lists the legal transitions; terminal statuses have none.
var allowed = map[models.QueryStatus][]models.QueryStatus{
	models.StatusPending: {models.StatusRunning, models.StatusCancelled, models.StatusFailed},
	models.StatusRunning: {models.StatusCompleted, models.StatusFailed, models.StatusCancelled},
}

func canTransition(from, to models.QueryStatus) bool {
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}

type execution struct {
	id string

	mu         sync.Mutex
	status     models.QueryStatus
	result     *models.QueryResult
	err        error
	cancel     context.CancelFunc
	startedAt  time.Time
	finishedAt time.Time
	done       chan struct{}
}

func newExecution(id string) *execution {
	return &execution{id: id, status: models.StatusPending, done: make(chan struct{})}
}

// start moves a PENDING execution to RUNNING and records how to interrupt it.
func (e *execution) start(cancel context.CancelFunc, now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !canTransition(e.status, models.StatusRunning) {
		return false
	}
	e.status = models.StatusRunning
	e.cancel = cancel
	e.startedAt = now
	return true
}

// finish records a terminal outcome unless one is already recorded.
func (e *execution) finish(status models.QueryStatus, result *models.QueryResult, err error, now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !canTransition(e.status, status) {
		return false
	}
	e.status = status
	e.result = result
	e.err = err
	e.finishedAt = now
	close(e.done)
	return true
}

func (e *execution) snapshot() (models.QueryStatus, *models.QueryResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status, e.result, e.err
}

func (e *execution) expired(cutoff time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status.IsTerminal() && e.finishedAt.Before(cutoff)
}

// Executor runs statements synchronously or on its worker pool and answers
// status, result and cancellation requests by query id.
type Executor struct {
	config  Config
	pool    *WorkerPool
	metrics *Metrics
	logger  *zap.Logger
	now     func() time.Time

	mu         sync.Mutex
	executions map[string]*execution
}

// New creates an Executor. A nil metrics records into unregistered collectors.
func New(config Config, metrics *Metrics, logger *zap.Logger) *Executor {
	def := DefaultConfig()
	if config.Workers < 1 {
		config.Workers = def.Workers
	}
	if config.BatchSize < 1 {
		config.BatchSize = def.BatchSize
	}
	if config.Retention <= 0 {
		config.Retention = def.Retention
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics, _ = NewMetrics(nil)
	}
	return &Executor{
		config:     config,
		pool:       NewWorkerPool(WorkerPoolConfig{MaxConcurrent: config.Workers}, logger),
		metrics:    metrics,
		logger:     logger.Named("executor"),
		now:        time.Now,
		executions: make(map[string]*execution),
	}
}

// Pool returns the executor's worker pool.
func (x *Executor) Pool() *WorkerPool {
	return x.pool
}

// Execute runs stmt against adapter. Synchronous executions block until a
// terminal status and return its result or error. Async executions return
// immediately with a PENDING result carrying the query id; the outcome is
// available through Wait and Result.
func (x *Executor) Execute(ctx context.Context, stmt Statement, adapter datasource.Adapter, meta *models.QueryMetadata) (*models.QueryResult, error) {
	md := models.DefaultQueryMetadata()
	if meta != nil {
		md = meta.WithDefaults()
	}
	if err := md.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindValidation, stageExecute, err.Error())
	}
	if adapter == nil {
		return nil, apperrors.Validation(stageExecute, "no data source adapter")
	}

	id := md.QueryID
	if id == "" {
		id = uuid.NewString()
	}
	e, err := x.register(id)
	if err != nil {
		return nil, err
	}

	if md.Async {
		runCtx := context.WithoutCancel(ctx)
		x.pool.Go(id, func() { x.run(runCtx, e, stmt, adapter, md) })
		return &models.QueryResult{QueryID: id, Status: models.StatusPending}, nil
	}

	x.run(ctx, e, stmt, adapter, md)
	return x.outcome(e)
}

// Cancel moves a PENDING or RUNNING execution to CANCELLED and interrupts the
// data source call at its next checkpoint. It reports false for unknown ids
// and executions already in a terminal status.
func (x *Executor) Cancel(queryID string) bool {
	e, ok := x.lookup(queryID)
	if !ok {
		return false
	}

	e.mu.Lock()
	if !canTransition(e.status, models.StatusCancelled) {
		e.mu.Unlock()
		return false
	}
	e.status = models.StatusCancelled
	e.err = apperrors.WithQueryID(apperrors.New(apperrors.KindCancelled, stageExecute, "query cancelled"), queryID)
	e.finishedAt = x.now()
	close(e.done)
	cancel := e.cancel
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	x.logger.Info("Query cancelled", zap.String("query_id", queryID))
	return true
}

// Status returns the current status of an execution.
func (x *Executor) Status(queryID string) (models.QueryStatus, error) {
	e, ok := x.lookup(queryID)
	if !ok {
		return "", notFound(queryID)
	}
	status, _, _ := e.snapshot()
	return status, nil
}

// Result returns the outcome of a terminal execution. A non-terminal execution
// yields a result that carries only its id and status.
func (x *Executor) Result(queryID string) (*models.QueryResult, error) {
	e, ok := x.lookup(queryID)
	if !ok {
		return nil, notFound(queryID)
	}
	status, _, _ := e.snapshot()
	if !status.IsTerminal() {
		return &models.QueryResult{QueryID: queryID, Status: status}, nil
	}
	return x.outcome(e)
}

// Wait blocks until the execution reaches a terminal status or ctx ends.
func (x *Executor) Wait(ctx context.Context, queryID string) (*models.QueryResult, error) {
	e, ok := x.lookup(queryID)
	if !ok {
		return nil, notFound(queryID)
	}
	select {
	case <-e.done:
		return x.outcome(e)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close cancels every unfinished execution and waits for background work.
func (x *Executor) Close() {
	x.mu.Lock()
	ids := make([]string, 0, len(x.executions))
	for id := range x.executions {
		ids = append(ids, id)
	}
	x.mu.Unlock()

	for _, id := range ids {
		x.Cancel(id)
	}
	x.pool.Wait()
}

func (x *Executor) register(id string) (*execution, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	cutoff := x.now().Add(-x.config.Retention)
	for key, e := range x.executions {
		if e.expired(cutoff) {
			delete(x.executions, key)
		}
	}

	if existing, ok := x.executions[id]; ok {
		if status, _, _ := existing.snapshot(); !status.IsTerminal() {
			return nil, apperrors.Validation(stageExecute, "query id %s is already in use", id)
		}
	}
	e := newExecution(id)
	x.executions[id] = e
	return e, nil
}

func (x *Executor) lookup(id string) (*execution, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	e, ok := x.executions[id]
	return e, ok
}

func (x *Executor) outcome(e *execution) (*models.QueryResult, error) {
	_, result, err := e.snapshot()
	if err != nil {
		return nil, err
	}
	return result.Clone(), nil
}

func (x *Executor) run(parent context.Context, e *execution, stmt Statement, adapter datasource.Adapter, md models.QueryMetadata) {
	ctx, cancel := context.WithTimeout(parent, md.Timeout)
	defer cancel()

	started := x.now()
	if !e.start(cancel, started) {
		x.logger.Debug("Skipping execution no longer pending", zap.String("query_id", e.id))
		return
	}
	x.metrics.inFlight.Inc()
	defer x.metrics.inFlight.Dec()

	x.logger.Debug("Executing query",
		zap.String("query_id", e.id),
		zap.String("sql", logging.SanitizeQuery(stmt.SQL)),
		zap.Int("param_count", len(stmt.Parameters)))

	result, err := x.fetch(ctx, stmt, adapter, md)
	elapsed := x.now().Sub(started)

	if err != nil {
		err = apperrors.WithQueryID(classify(ctx, parent, err, md.Timeout), e.id)
		status := models.StatusFailed
		if apperrors.KindOf(err) == apperrors.KindCancelled {
			status = models.StatusCancelled
		}
		if e.finish(status, nil, err, x.now()) {
			x.metrics.recordOutcome(status, elapsed, nil)
			x.logger.Warn("Query execution failed",
				zap.String("query_id", e.id),
				zap.String("status", string(status)),
				zap.String("error", logging.SanitizeError(err)))
		}
		return
	}

	result.QueryID = e.id
	result.Status = models.StatusCompleted
	result.ExecutionTime = elapsed
	if e.finish(models.StatusCompleted, result, nil, x.now()) {
		x.metrics.recordOutcome(models.StatusCompleted, elapsed, result)
		x.logger.Info("Query completed",
			zap.String("query_id", e.id),
			zap.Int("rows", result.RowCount),
			zap.Bool("truncated", result.Truncated),
			zap.Duration("duration", elapsed))
	}
}

// fetch binds, executes and reads the cursor, checking ctx before binding
// and before each batch of rows.
func (x *Executor) fetch(ctx context.Context, stmt Statement, adapter datasource.Adapter, md models.QueryMetadata) (*models.QueryResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	query, err := sql.NormalizeStatement(stmt.SQL)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindValidation, stageExecute, err.Error())
	}
	if hits := sql.CheckBoundParameters(stmt.Parameters); len(hits) > 0 {
		return nil, apperrors.Validation(stageExecute,
			"parameter %q contains a potential SQL injection pattern", hits[0].ParamName)
	}

	cursor, err := adapter.Query(ctx, query, stmt.args())
	if err != nil {
		return nil, err
	}
	defer cursor.Close()

	limit := md.MaxRows
	if stmt.Limit > 0 && stmt.Limit < limit {
		limit = stmt.Limit
	}

	batch := x.config.BatchSize
	result := &models.QueryResult{
		Columns: cursor.Columns(),
		Rows:    make([]models.Row, 0, min(limit, batch)),
	}

	var seen int64
	for {
		if seen%int64(batch) == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if !cursor.Next() {
			break
		}
		seen++
		if len(result.Rows) < limit {
			row, err := cursor.Row()
			if err != nil {
				return nil, err
			}
			result.Rows = append(result.Rows, row)
			continue
		}
		result.Truncated = true
		if !md.ReturnTotalRows {
			break
		}
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}

	result.RowCount = len(result.Rows)
	if md.ReturnTotalRows {
		total := seen
		result.TotalRows = &total
	}
	return result, nil
}

// classify maps a failure to the error taxonomy. Deadline expiry of the
// execution's own timeout is a timeout; any other context end is a cancellation.
func classify(ctx, parent context.Context, err error, timeout time.Duration) error {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && parent.Err() == nil {
		return apperrors.Wrap(err, apperrors.KindTimeout, stageExecute, "query exceeded timeout of "+timeout.String())
	}
	if ctx.Err() != nil {
		return apperrors.Wrap(err, apperrors.KindCancelled, stageExecute, "query cancelled")
	}
	return apperrors.Wrap(err, apperrors.KindExecution, stageExecute, "data source query failed: "+logging.SanitizeError(err))
}

func notFound(queryID string) error {
	return apperrors.Newf(apperrors.KindNotFound, stageStatus, "query %s not found", queryID)
}
