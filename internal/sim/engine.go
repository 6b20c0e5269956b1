// Package sim drives ephemeris computation for every registered system on
// each simulation tick and fans the snapshots out to the kb and optional
// sinks.
package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/signalsfoundry/orrery/core"
	"github.com/signalsfoundry/orrery/internal/logging"
	"github.com/signalsfoundry/orrery/kb"
	"github.com/signalsfoundry/orrery/model"
	"github.com/signalsfoundry/orrery/timectrl"
)

const tracerName = "github.com/signalsfoundry/orrery/internal/sim"

// Publisher receives every snapshot, e.g. a NATS connection.
type Publisher interface {
	Publish(eph model.Ephemeris) error
}

// Recorder persists systems and sampled snapshots, e.g. the SQLite store.
type Recorder interface {
	SaveSystem(ctx context.Context, name string, root *core.Node) error
	RecordEphemeris(ctx context.Context, eph model.Ephemeris) error
}

// SystemMetricsRecorder receives node counts when a system is registered.
type SystemMetricsRecorder interface {
	SetSystemCounts(system string, bodies, barycenters, crafts int)
}

// TickMetricsRecorder receives per-tick measurements.
type TickMetricsRecorder interface {
	ObserveTick(d time.Duration, propagated int)
	IncPublishError(sink string)
}

// Engine computes ephemerides for all systems in a KnowledgeBase.
type Engine struct {
	kb    *kb.KnowledgeBase
	mode  core.PropagationMode
	epoch time.Time

	log          logging.Logger
	publisher    Publisher
	recorder     Recorder
	sampleEvery  int
	systemCounts SystemMetricsRecorder
	tickMetrics  TickMetricsRecorder

	mu    sync.Mutex
	ticks int
}

// Option customises Engine construction.
type Option func(*Engine)

// WithLogger attaches a structured logger.
func WithLogger(log logging.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithPublisher forwards every snapshot to p.
func WithPublisher(p Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithRecorder persists registered systems and every Nth snapshot.
func WithRecorder(r Recorder, every int) Option {
	return func(e *Engine) {
		e.recorder = r
		if every < 1 {
			every = 1
		}
		e.sampleEvery = every
	}
}

// WithSystemMetrics reports node counts of registered systems.
func WithSystemMetrics(m SystemMetricsRecorder) Option {
	return func(e *Engine) { e.systemCounts = m }
}

// WithTickMetrics reports tick durations and sink failures.
func WithTickMetrics(m TickMetricsRecorder) Option {
	return func(e *Engine) { e.tickMetrics = m }
}

// NewEngine constructs an engine over store. In SimulationClock mode time
// values are days elapsed since epoch; in PhysicalEpoch mode they are
// Julian Days.
func NewEngine(store *kb.KnowledgeBase, mode core.PropagationMode, epoch time.Time, opts ...Option) *Engine {
	e := &Engine{
		kb:          store,
		mode:        mode,
		epoch:       epoch,
		log:         logging.Noop(),
		sampleEvery: 1,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Mode returns the propagation mode snapshots are computed with.
func (e *Engine) Mode() core.PropagationMode { return e.mode }

// Epoch is the instant the simulation clock counts from.
func (e *Engine) Epoch() time.Time { return e.epoch }

// TimeValue converts a simulation instant to the time parameter of the
// engine's propagation mode.
func (e *Engine) TimeValue(now time.Time) float64 {
	return TimeValue(e.mode, e.epoch, now)
}

// TimeValue converts now to the time parameter of mode: a Julian Day for
// PhysicalEpoch, days elapsed since epoch for SimulationClock.
func TimeValue(mode core.PropagationMode, epoch, now time.Time) float64 {
	if mode == core.SimulationClock {
		return now.Sub(epoch).Hours() / 24
	}
	return core.JulianDay(now)
}

// AddSystem registers a built system, records its node counts and persists
// its projection when a recorder is attached.
func (e *Engine) AddSystem(ctx context.Context, name string, root *core.Node) error {
	if err := e.kb.AddSystem(name, root); err != nil {
		return err
	}
	counts := core.Counts(root)
	if e.systemCounts != nil {
		e.systemCounts.SetSystemCounts(name, counts[core.KindBody], counts[core.KindBarycenter], counts[core.KindCraft])
	}
	if e.recorder != nil {
		if err := e.recorder.SaveSystem(ctx, name, root); err != nil {
			e.log.Warn(ctx, "failed to persist system", logging.String("system", name), logging.Err(err))
		}
	}
	e.log.Info(ctx, "system registered",
		logging.String("system", name),
		logging.String("root", root.Name()),
		logging.Int("bodies", counts[core.KindBody]),
		logging.Int("barycenters", counts[core.KindBarycenter]),
		logging.Int("crafts", counts[core.KindCraft]),
	)
	return nil
}

// Snapshot computes the ephemeris of one system at now without publishing.
func (e *Engine) Snapshot(name string, now time.Time) (model.Ephemeris, error) {
	root, err := e.kb.GetSystem(name)
	if err != nil {
		return model.Ephemeris{}, err
	}
	return core.ComputeEphemeris(name, root, e.TimeValue(now), e.mode), nil
}

// Step computes and distributes the ephemeris of every system at now.
// Sink failures are logged and counted; the first kb error is returned.
func (e *Engine) Step(ctx context.Context, now time.Time) error {
	start := time.Now()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "sim.Step")
	defer span.End()

	e.mu.Lock()
	e.ticks++
	record := e.recorder != nil && (e.ticks-1)%e.sampleEvery == 0
	e.mu.Unlock()

	t := e.TimeValue(now)
	propagated := 0
	var firstErr error
	for _, name := range e.kb.ListSystems() {
		root, err := e.kb.GetSystem(name)
		if err != nil {
			continue
		}
		eph := core.ComputeEphemeris(name, root, t, e.mode)
		propagated += len(eph.Bodies)

		if err := e.kb.UpdateEphemeris(eph); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("update ephemeris %s: %w", name, err)
		}
		if e.publisher != nil {
			if err := e.publisher.Publish(eph); err != nil {
				e.sinkFailed(ctx, "publisher", name, err)
			}
		}
		if record {
			if err := e.recorder.RecordEphemeris(ctx, eph); err != nil {
				e.sinkFailed(ctx, "recorder", name, err)
			}
		}
	}

	span.SetAttributes(
		attribute.Float64("sim.t", t),
		attribute.String("sim.mode", e.mode.String()),
		attribute.Int("sim.propagated", propagated),
	)
	if e.tickMetrics != nil {
		e.tickMetrics.ObserveTick(time.Since(start), propagated)
	}
	return firstErr
}

// Attach drives the engine from tc's ticks.
func (e *Engine) Attach(ctx context.Context, tc *timectrl.TimeController) {
	tc.AddListener(func(now time.Time) {
		if err := e.Step(ctx, now); err != nil {
			e.log.Warn(ctx, "tick failed", logging.Err(err))
		}
	})
}

func (e *Engine) sinkFailed(ctx context.Context, sink, system string, err error) {
	if e.tickMetrics != nil {
		e.tickMetrics.IncPublishError(sink)
	}
	e.log.Warn(ctx, "ephemeris sink failed",
		logging.String("sink", sink),
		logging.String("system", system),
		logging.Err(err),
	)
}
