package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/signalsfoundry/orrery/catalog"
	"github.com/signalsfoundry/orrery/core"
	"github.com/signalsfoundry/orrery/internal/logging"
	"github.com/signalsfoundry/orrery/internal/sim"
	"github.com/signalsfoundry/orrery/kb"
	"github.com/signalsfoundry/orrery/model"
	"github.com/signalsfoundry/orrery/timectrl"
)

type options struct {
	Duration   time.Duration // simulated time to cover
	Tick       time.Duration // wall-clock interval between ticks
	Step       time.Duration // simulated time per tick
	Mode       string
	Start      time.Time
	SystemFile string   // JSON system definition; the Solar System when empty
	Bodies     []string // print only these nodes; all when empty
}

func main() {
	duration := flag.Duration("duration", 365*24*time.Hour, "total simulated duration")
	tick := flag.Duration("tick", 100*time.Millisecond, "wall-clock tick interval")
	step := flag.Duration("step", 24*time.Hour, "simulated time advanced per tick")
	mode := flag.String("mode", "physical", "propagation mode: physical or simulation")
	start := flag.String("start", "", "start time (RFC3339), now when empty")
	system := flag.String("system", "", "JSON system definition file (default: the Solar System)")
	bodies := flag.String("bodies", "", "comma-separated node names to print (default: all)")
	flag.Parse()

	log := logging.NewFromEnv()

	opts := options{
		Duration:   *duration,
		Tick:       *tick,
		Step:       *step,
		Mode:       *mode,
		Start:      time.Now().UTC(),
		SystemFile: *system,
	}
	if *start != "" {
		t, err := time.Parse(time.RFC3339, *start)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid -start: %v\n", err)
			os.Exit(2)
		}
		opts.Start = t.UTC()
	}
	if *bodies != "" {
		for _, b := range strings.Split(*bodies, ",") {
			if b = strings.TrimSpace(b); b != "" {
				opts.Bodies = append(opts.Bodies, b)
			}
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := simulate(ctx, os.Stdout, opts, log); err != nil {
		log.Error(ctx, "simulation failed", logging.Err(err))
		os.Exit(1)
	}
}

// simulate propagates one system for opts.Duration and prints a block of
// absolute positions per tick to w.
func simulate(ctx context.Context, w io.Writer, opts options, log logging.Logger) error {
	mode, err := core.ParsePropagationMode(opts.Mode)
	if err != nil {
		return err
	}
	if opts.Tick <= 0 {
		return fmt.Errorf("tick must be positive, got %s", opts.Tick)
	}

	root, name, err := loadRoot(ctx, opts.SystemFile, log)
	if err != nil {
		return err
	}

	store := kb.NewKnowledgeBase()
	engine := sim.NewEngine(store, mode, opts.Start, sim.WithLogger(log))
	if err := engine.AddSystem(ctx, name, root); err != nil {
		return err
	}

	filter := make(map[string]bool, len(opts.Bodies))
	for _, b := range opts.Bodies {
		filter[b] = true
	}

	tc := timectrl.NewTimeController(opts.Start, opts.Tick, timectrl.Accelerated)
	tc.Step = opts.Step
	engine.Attach(ctx, tc)

	// Listeners run in registration order, so the engine has stored the
	// tick's ephemeris before it is printed.
	show := func(now time.Time) {
		if eph, ok := store.Latest(name); ok {
			printEphemeris(w, now, eph, filter)
		}
	}
	tc.AddListener(show)

	fmt.Fprintf(w, "Starting simulation: system=%s, duration=%s, tick=%s, step=%s, mode=%s\n",
		name, opts.Duration, opts.Tick, opts.Step, mode)
	if err := engine.Step(ctx, opts.Start); err != nil {
		return err
	}
	show(opts.Start)
	<-tc.Run(ctx, opts.Duration)
	if ctx.Err() != nil {
		fmt.Fprintln(w, "Simulation interrupted.")
		return nil
	}
	fmt.Fprintln(w, "Simulation complete.")
	return nil
}

func loadRoot(ctx context.Context, path string, log logging.Logger) (*core.Node, string, error) {
	if path == "" {
		root, err := catalog.BuildSolarSystem(core.WithBuildLogger(log), core.WithBuildContext(ctx))
		return root, catalog.SolarSystemName, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()
	def, root, err := core.LoadDefinition(ctx, f, core.WithBuildLogger(log))
	if err != nil {
		return nil, "", err
	}
	return root, def.Name, nil
}

func printEphemeris(w io.Writer, now time.Time, eph model.Ephemeris, filter map[string]bool) {
	fmt.Fprintf(w, "[%s t=%.4f]\n", now.Format(time.RFC3339), eph.T)
	for _, b := range eph.Bodies {
		if len(filter) > 0 && !filter[b.Name] {
			continue
		}
		fmt.Fprintf(w, "↳ %-28s %-11s (%12.6f, %12.6f) AU\n", b.Name, b.Kind, b.Absolute.X, b.Absolute.Y)
	}
}
