package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/skratchdot/open-golang/open"

	"github.com/signalsfoundry/orrery/catalog"
	"github.com/signalsfoundry/orrery/core"
	"github.com/signalsfoundry/orrery/internal/bus"
	"github.com/signalsfoundry/orrery/internal/config"
	"github.com/signalsfoundry/orrery/internal/logging"
	"github.com/signalsfoundry/orrery/internal/observability"
	"github.com/signalsfoundry/orrery/internal/rpc"
	"github.com/signalsfoundry/orrery/internal/sim"
	"github.com/signalsfoundry/orrery/internal/store"
	"github.com/signalsfoundry/orrery/internal/web"
	"github.com/signalsfoundry/orrery/kb"
	"github.com/signalsfoundry/orrery/timectrl"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	cfg.RegisterFlags(flag.CommandLine)
	flag.Parse()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	log := logging.New(cfg.Log)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpLis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		log.Error(ctx, "failed to listen for HTTP", logging.String("addr", cfg.HTTPAddr), logging.Err(err))
		os.Exit(1)
	}
	var grpcLis net.Listener
	if cfg.GRPCAddr != "" {
		if grpcLis, err = net.Listen("tcp", cfg.GRPCAddr); err != nil {
			log.Error(ctx, "failed to listen for gRPC", logging.String("addr", cfg.GRPCAddr), logging.Err(err))
			os.Exit(1)
		}
	}

	url := "http://" + httpLis.Addr().String()
	log.Info(ctx, "listening", logging.String("url", url))
	if cfg.OpenBrowser {
		if err := open.Run(url); err != nil {
			log.Warn(ctx, "could not open browser", logging.Err(err))
		}
	}

	if err := run(ctx, cfg, log, httpLis, grpcLis); err != nil {
		log.Error(ctx, "orrery exited", logging.Err(err))
		os.Exit(1)
	}
}

// run wires every component and blocks until ctx is cancelled or a server
// fails. grpcLis may be nil.
func run(ctx context.Context, cfg config.Config, log logging.Logger, httpLis, grpcLis net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector, err := observability.NewCollector(reg)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	engineMetrics, err := observability.NewEngineCollector(reg)
	if err != nil {
		return fmt.Errorf("init engine metrics: %w", err)
	}

	mode, err := core.ParsePropagationMode(cfg.Mode)
	if err != nil {
		return err
	}

	opts := []sim.Option{
		sim.WithLogger(log),
		sim.WithSystemMetrics(collector),
		sim.WithTickMetrics(engineMetrics),
	}

	if cfg.DBPath != "" {
		st, err := store.Open(ctx, cfg.DBPath, log)
		if err != nil {
			return err
		}
		defer st.Close()
		opts = append(opts, sim.WithRecorder(st, cfg.SampleEvery))
	}

	natsURL := cfg.NATSURL
	if cfg.NATSEmbedded {
		ns, err := bus.StartEmbedded(ctx, "127.0.0.1", cfg.NATSPort, log)
		if err != nil {
			return err
		}
		defer ns.Shutdown()
		if natsURL == "" {
			natsURL = ns.ClientURL()
		}
	}
	if natsURL != "" {
		pub, err := bus.Connect(ctx, natsURL, log)
		if err != nil {
			return err
		}
		defer pub.Close()
		opts = append(opts, sim.WithPublisher(pub))
	}

	start := time.Now().UTC()
	systems := kb.NewKnowledgeBase()
	engine := sim.NewEngine(systems, mode, start, opts...)
	if err := loadSystems(ctx, engine, cfg.SystemFile, log); err != nil {
		return err
	}

	tc := timectrl.NewTimeController(start, cfg.Tick, timectrl.Accelerated)
	tc.Step = cfg.Step()
	if err := engine.Step(ctx, start); err != nil {
		return err
	}
	engine.Attach(ctx, tc)
	ticking := tc.Run(ctx, 0)

	errCh := make(chan error, 3)

	httpSrv := &http.Server{
		Handler: web.NewServer(web.Config{
			StaticDir: cfg.StaticDir,
			EchoDelay: cfg.EchoDelay,
			RateLimit: cfg.RateLimit,
			RateBurst: cfg.RateBurst,
		}, systems, engine, tc, log, collector).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := httpSrv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var grpcSrv interface{ GracefulStop() }
	if grpcLis != nil {
		srv := rpc.NewServer(rpc.NewService(systems, engine, tc, log), log, collector)
		grpcSrv = srv
		log.Info(ctx, "starting gRPC server", logging.String("addr", grpcLis.Addr().String()))
		go func() {
			if err := srv.Serve(grpcLis); err != nil {
				errCh <- fmt.Errorf("grpc server: %w", err)
			}
		}()
	}

	metricsSrv := serveMetrics(cfg.MetricsAddr, collector, log)

	select {
	case <-ctx.Done():
	case err = <-errCh:
	}
	cancel()
	<-ticking

	log.Info(context.Background(), "shutting down")
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpSrv.Shutdown(shutdownCtx)
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return err
}

func loadSystems(ctx context.Context, engine *sim.Engine, path string, log logging.Logger) error {
	sol, err := catalog.BuildSolarSystem(core.WithBuildLogger(log), core.WithBuildContext(ctx))
	if err != nil {
		return fmt.Errorf("build solar system: %w", err)
	}
	if err := engine.AddSystem(ctx, catalog.SolarSystemName, sol); err != nil {
		return err
	}
	if path == "" {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open system file: %w", err)
	}
	defer f.Close()
	def, root, err := core.LoadDefinition(ctx, f, core.WithBuildLogger(log))
	if err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return engine.AddSystem(ctx, def.Name, root)
}

func serveMetrics(addr string, collector *observability.Collector, log logging.Logger) *http.Server {
	if addr == "" || collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
