// Package collector orchestrates one collection run: refresh the
// inventory through the gateways, fan metric reads out across a worker
// pool, validate what comes back and land it in storage in batches.
package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/kulu-io/kulu/catalog"
	"github.com/kulu-io/kulu/gateway"
	"github.com/kulu-io/kulu/providers"
	"github.com/kulu-io/kulu/storage"
	"github.com/kulu-io/kulu/telemetry"
	"github.com/kulu-io/kulu/types"
	"github.com/kulu-io/kulu/validation"
)

// Gate is the slice of the gateway the collector depends on
type Gate interface {
	Account() providers.Account
	DiscoverResources(ctx context.Context, kinds []string) ([]types.Resource, error)
	ReadMetric(ctx context.Context, resource types.Resource, metricName string, window providers.TimeWindow, agg types.Aggregation) ([]providers.Point, error)
}

// GatePool hands out one shared gate per account
type GatePool interface {
	For(ctx context.Context, account providers.Account) (Gate, error)
}

// NewGatewayPool adapts a gateway.Pool to the GatePool interface
func NewGatewayPool(pool *gateway.Pool) GatePool {
	return gatewayPool{pool: pool}
}

type gatewayPool struct{ pool *gateway.Pool }

func (g gatewayPool) For(ctx context.Context, account providers.Account) (Gate, error) {
	return g.pool.For(ctx, account)
}

// Store is the persistence surface a run writes through
type Store interface {
	storage.Inventory
	storage.TimeSeries
	storage.RunLog
}

// Config tunes one collector instance
type Config struct {
	// Kinds limits discovery; empty means every known kind
	Kinds []string

	// Workers bounds simultaneously in-flight collection units. This
	// protects local memory and connections; the gateway's own bound
	// protects the remote API.
	Workers int

	BatchSize     int
	FlushInterval time.Duration

	// RetryAttempts and RetryBaseDelay govern per-unit retries of
	// transient provider errors
	RetryAttempts  int
	RetryBaseDelay time.Duration

	// UnitTimeout spans all retry attempts of one unit
	UnitTimeout time.Duration

	// Window and Step shape the metric read request
	Window time.Duration
	Step   time.Duration
}

// DefaultConfig returns production defaults
func DefaultConfig() Config {
	return Config{
		Kinds:          []string{types.KindInstance, types.KindVolume, types.KindSnapshot, types.KindDatabase},
		Workers:        8,
		BatchSize:      500,
		FlushInterval:  5 * time.Second,
		RetryAttempts:  3,
		RetryBaseDelay: 200 * time.Millisecond,
		UnitTimeout:    2 * time.Minute,
		Window:         time.Hour,
		Step:           5 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if len(c.Kinds) == 0 {
		c.Kinds = def.Kinds
	}
	if c.Workers <= 0 {
		c.Workers = def.Workers
	}
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = def.FlushInterval
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = def.RetryAttempts
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = def.RetryBaseDelay
	}
	if c.UnitTimeout <= 0 {
		c.UnitTimeout = def.UnitTimeout
	}
	if c.Window <= 0 {
		c.Window = def.Window
	}
	if c.Step <= 0 {
		c.Step = def.Step
	}
	return c
}

// Collector runs collection passes. Safe to reuse across runs; each
// Run call is independent.
type Collector struct {
	store  Store
	pool   GatePool
	cfg    Config
	logger *telemetry.Logger

	// now is swappable for deterministic tests
	now func() time.Time
}

// New creates a collector
func New(store Store, pool GatePool, cfg Config) *Collector {
	return &Collector{
		store:  store,
		pool:   pool,
		cfg:    cfg.withDefaults(),
		logger: telemetry.NewLogger("collector"),
		now:    time.Now,
	}
}

// unit is one (resource, metric definition) pair read through its
// account's gate
type unit struct {
	gate     Gate
	resource types.Resource
	def      types.MetricDefinition
}

// runState guards the run record against concurrent unit updates
type runState struct {
	mu  sync.Mutex
	run types.CollectionRun
}

func (s *runState) recordError(e types.RunError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.run.RecordError(e)
}

func (s *runState) snapshot() types.CollectionRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run
}

// Run executes one full collection pass over the given accounts and
// returns the finalized run record. Unit-level failures land in the
// record, not the error return; only an auth failure (or a storage
// failure on the run record itself) comes back as an error.
func (c *Collector) Run(ctx context.Context, accounts []providers.Account) (types.CollectionRun, error) {
	ctx, span := telemetry.Tracer.Start(ctx, "collector.run")
	defer span.End()

	started := c.now()
	state := &runState{run: types.CollectionRun{
		ID:        uuid.NewString(),
		StartedAt: started,
		Status:    types.RunPending,
	}}

	if err := c.store.SaveRun(ctx, state.snapshot()); err != nil {
		return state.snapshot(), fmt.Errorf("failed to create run record: %w", err)
	}
	c.logger.LogRunStart(ctx, state.run.ID, len(accounts))

	c.logger.LogSpanStart(ctx, "collector.discover", attribute.Int("accounts", len(accounts)))
	units, resourceCount, authErr := c.discover(ctx, accounts, state)
	c.logger.LogSpanEnd(ctx, "collector.discover", authErr)
	if authErr != nil {
		run, err := c.finalize(ctx, state, types.RunFailed, resourceCount, 0)
		if err != nil {
			return run, err
		}
		return run, authErr
	}

	if len(units) == 0 {
		status := types.RunCompleted
		if resourceCount == 0 && len(state.snapshot().Errors) > 0 {
			status = types.RunFailed
		}
		return c.finalize(ctx, state, status, resourceCount, 0)
	}

	// First dispatch moves the run to running
	state.mu.Lock()
	state.run.Status = types.RunRunning
	state.mu.Unlock()
	if err := c.store.SaveRun(ctx, state.snapshot()); err != nil {
		return state.snapshot(), fmt.Errorf("failed to mark run running: %w", err)
	}

	flushed, succeeded, failed, authErr := c.dispatch(ctx, units, state)

	status := decideStatus(ctx, authErr, succeeded, failed, flushed, state)
	run, err := c.finalize(ctx, state, status, resourceCount, flushed)
	if err != nil {
		return run, err
	}
	return run, authErr
}

// discover refreshes the inventory account by account. Accounts fail
// independently except for auth failures, which abort the whole run.
func (c *Collector) discover(ctx context.Context, accounts []providers.Account, state *runState) ([]unit, int, error) {
	g, gctx := errgroup.WithContext(ctx)

	var mu sync.Mutex
	var units []unit
	resourceCount := 0

	for _, account := range accounts {
		g.Go(func() error {
			gw, err := c.pool.For(gctx, account)
			if err != nil {
				state.recordError(types.RunError{
					ResourceID: "account/" + account.ID,
					Kind:       types.ErrKindProvider,
					Message:    err.Error(),
				})
				return nil
			}

			resources, err := gw.DiscoverResources(gctx, c.cfg.Kinds)
			if err != nil {
				if providers.IsAuth(err) {
					state.recordError(types.RunError{
						ResourceID: "account/" + account.ID,
						Kind:       types.ErrKindAuth,
						Message:    err.Error(),
					})
					return err
				}
				state.recordError(types.RunError{
					ResourceID: "account/" + account.ID,
					Kind:       errorKind(err),
					Message:    err.Error(),
				})
				return nil
			}

			if err := c.store.UpsertResourceBatch(gctx, resources, c.now()); err != nil {
				state.recordError(types.RunError{
					ResourceID: "account/" + account.ID,
					Kind:       types.ErrKindPersistence,
					Message:    err.Error(),
				})
				return nil
			}

			accountUnits := make([]unit, 0, len(resources))
			for _, resource := range resources {
				for _, def := range catalog.ForKind(resource.Kind) {
					accountUnits = append(accountUnits, unit{gate: gw, resource: resource, def: def})
				}
			}

			mu.Lock()
			units = append(units, accountUnits...)
			resourceCount += len(resources)
			mu.Unlock()

			if telemetry.ResourcesDiscovered != nil {
				telemetry.ResourcesDiscovered.Add(gctx, int64(len(resources)))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, resourceCount, err
	}
	return units, resourceCount, nil
}

// dispatch fans units out across the worker pool and funnels accepted
// samples through the flusher
func (c *Collector) dispatch(ctx context.Context, units []unit, state *runState) (flushed, succeeded, failed int, authErr error) {
	fl := newFlusher(c.store, state.run.ID, c.cfg, c.logger)
	go fl.run(context.WithoutCancel(ctx))

	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Workers)
	for _, u := range units {
		g.Go(func() error {
			ok, fatal := c.collectUnit(gctx, u, state, fl)
			if fatal != nil {
				return fatal
			}
			mu.Lock()
			if ok {
				succeeded++
			} else {
				failed++
			}
			mu.Unlock()
			return nil
		})
	}
	authErr = g.Wait()
	if authErr != nil && !providers.IsAuth(authErr) {
		// Context cancellation surfaces here; it is not an auth abort
		authErr = nil
	}

	flushed, persistErrors := fl.close()
	for _, e := range persistErrors {
		state.recordError(e)
	}
	return flushed, succeeded, failed, authErr
}

// collectUnit reads one metric series with bounded retries, validates
// the points and hands survivors to the flusher. Returns ok=false when
// the unit permanently failed, and a non-nil fatal error only for auth
// failures.
func (c *Collector) collectUnit(ctx context.Context, u unit, state *runState, fl *flusher) (ok bool, fatal error) {
	unitCtx, cancel := context.WithTimeout(ctx, c.cfg.UnitTimeout)
	defer cancel()

	window := providers.TimeWindow{
		Start: state.run.StartedAt.Add(-c.cfg.Window),
		End:   state.run.StartedAt,
		Step:  c.cfg.Step,
	}
	agg := u.def.PrimaryAggregation()

	var points []providers.Point
	var lastErr error

	// Attempts within one unit are strictly sequential; the timeout
	// spans them all
	for attempt := 0; attempt < c.cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			delay := c.cfg.RetryBaseDelay * (1 << (attempt - 1))
			select {
			case <-time.After(delay):
			case <-unitCtx.Done():
			}
		}
		if unitCtx.Err() != nil {
			break
		}

		points, lastErr = u.gate.ReadMetric(unitCtx, u.resource, u.def.Name, window, agg)
		if lastErr == nil {
			break
		}
		if providers.IsAuth(lastErr) {
			state.recordError(types.RunError{
				ResourceID: u.resource.ID,
				MetricName: u.def.Name,
				Kind:       types.ErrKindAuth,
				Message:    lastErr.Error(),
			})
			return false, lastErr
		}
		if !providers.IsTransient(lastErr) && !providers.IsRateLimited(lastErr) {
			break
		}
	}

	if parentErr := ctx.Err(); parentErr != nil {
		// External cancellation: finalize without blaming the unit
		return false, nil
	}
	if unitCtx.Err() != nil && lastErr == nil {
		lastErr = unitCtx.Err()
	}
	if lastErr != nil {
		kind := errorKind(lastErr)
		if unitCtx.Err() != nil {
			kind = types.ErrKindTimeout
		}
		state.recordError(types.RunError{
			ResourceID: u.resource.ID,
			MetricName: u.def.Name,
			Kind:       kind,
			Message:    lastErr.Error(),
		})
		c.logger.WithContext(ctx).Warn().
			Str("resource_id", u.resource.ID).
			Str("metric", u.def.Name).
			Str("kind", string(kind)).
			Err(lastErr).
			Msg("collection unit failed")
		return false, nil
	}

	now := c.now()
	rejected := 0
	for _, point := range points {
		if rej := validation.Validate(u.def, point, window, agg, now); rej != nil {
			rejected++
			state.recordError(types.RunError{
				ResourceID: u.resource.ID,
				MetricName: u.def.Name,
				Kind:       types.ErrKindValidation,
				Message:    rej.String(),
			})
			continue
		}
		fl.submit(types.MetricSample{
			ResourceID:  u.resource.ID,
			MetricName:  u.def.Name,
			Timestamp:   point.Timestamp,
			Aggregation: agg,
			Value:       point.Value,
			Unit:        u.def.Unit,
			RunID:       state.run.ID,
		})
	}
	if rejected > 0 && telemetry.SamplesRejected != nil {
		telemetry.SamplesRejected.Add(ctx, int64(rejected))
	}
	return true, nil
}

// decideStatus picks the terminal status per the run contract:
// completed means zero errors, partial means some work succeeded,
// failed means none did or the run was aborted
func decideStatus(ctx context.Context, authErr error, succeeded, failed, flushed int, state *runState) types.RunStatus {
	switch {
	case authErr != nil:
		return types.RunFailed
	case ctx.Err() != nil:
		if succeeded > 0 || flushed > 0 {
			return types.RunPartial
		}
		return types.RunFailed
	case failed == 0 && len(state.snapshot().Errors) == 0:
		return types.RunCompleted
	case succeeded > 0:
		return types.RunPartial
	default:
		return types.RunFailed
	}
}

// finalize stamps the terminal state and persists the run record even
// when the surrounding context is already canceled
func (c *Collector) finalize(ctx context.Context, state *runState, status types.RunStatus, resources, flushed int) (types.CollectionRun, error) {
	ended := c.now()

	state.mu.Lock()
	state.run.Status = status
	state.run.EndedAt = &ended
	state.run.ResourcesProcessed = resources
	state.run.MetricsCollected = flushed
	run := state.run
	state.mu.Unlock()

	saveCtx := context.WithoutCancel(ctx)
	if err := c.store.SaveRun(saveCtx, run); err != nil {
		return run, fmt.Errorf("failed to finalize run %s: %w", run.ID, err)
	}

	c.logger.LogRunEnd(saveCtx, run.ID, string(run.Status), run.MetricsCollected, len(run.Errors), float64(run.Duration().Milliseconds()))
	if telemetry.CollectionDuration != nil {
		telemetry.CollectionDuration.Record(saveCtx, run.Duration().Seconds())
	}
	return run, nil
}

// errorKind maps a provider error to its run ledger classification
func errorKind(err error) types.ErrorKind {
	switch {
	case providers.IsAuth(err):
		return types.ErrKindAuth
	case providers.IsRateLimited(err):
		return types.ErrKindRateLimit
	case providers.IsTransient(err):
		return types.ErrKindProvider
	default:
		return types.ErrKindProvider
	}
}
