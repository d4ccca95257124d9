package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ajitpratap0/framefeed/internal/loadworker"
	"github.com/ajitpratap0/framefeed/pkg/blobstore"
	"github.com/ajitpratap0/framefeed/pkg/config"
	"github.com/ajitpratap0/framefeed/pkg/logger"
	"github.com/ajitpratap0/framefeed/pkg/observability"
	"github.com/ajitpratap0/framefeed/pkg/profiler"
	"github.com/ajitpratap0/framefeed/pkg/source"
	"github.com/ajitpratap0/framefeed/pkg/source/blob"
	"github.com/ajitpratap0/framefeed/pkg/source/column"
	_ "github.com/ajitpratap0/framefeed/pkg/source/memory"
	"github.com/ajitpratap0/framefeed/pkg/source/postgres"
)

// app holds everything a command opened and must release.
type app struct {
	cfg      *config.Config
	store    blobstore.Store
	pg       *postgres.Factory
	recorder *profiler.Recorder
	worker   *loadworker.Worker
	metrics  *http.Server
	log      *zap.Logger
}

// registerSources adds the store backed factories to the global registry.
// The in-memory source registers itself on import.
func registerSources(store blobstore.Store, pg config.PostgresConfig) (*postgres.Factory, error) {
	pgFactory := postgres.NewFactory(pg)
	for _, f := range []source.Factory{blob.NewFactory(store), column.NewFactory(store), pgFactory} {
		if err := source.Register(f); err != nil {
			return nil, err
		}
	}
	return pgFactory, nil
}

// sourceConfigs resolves every configured source against the registry.
func sourceConfigs(specs []config.SourceSpec) ([]source.Factory, []source.Config, error) {
	factories := make([]source.Factory, 0, len(specs))
	configs := make([]source.Config, 0, len(specs))
	for i, spec := range specs {
		f, err := source.Lookup(spec.Name)
		if err != nil {
			return nil, nil, fmt.Errorf("sources[%d]: %w", i, err)
		}
		cfg := source.Config{Options: spec.Options}
		for _, col := range spec.Columns {
			t, err := source.ParseColumnType(col.Type)
			if err != nil {
				return nil, nil, fmt.Errorf("sources[%d]: %w", i, err)
			}
			cfg.OutputColumns = append(cfg.OutputColumns, col.Name)
			cfg.OutputColumnTypes = append(cfg.OutputColumnTypes, t)
		}
		factories = append(factories, f)
		configs = append(configs, cfg)
	}
	return factories, configs, nil
}

// tableMeta converts the configured table into source metadata.
func tableMeta(t config.TableConfig) (*source.TableMeta, error) {
	meta := &source.TableMeta{ID: t.ID, Name: t.Name}
	for _, col := range t.Columns {
		ct, err := source.ParseColumnType(col.Type)
		if err != nil {
			return nil, err
		}
		codec, err := source.ParseVideoCodec(col.Codec)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col.Name, err)
		}
		meta.Columns = append(meta.Columns, source.ColumnDescriptor{
			Name:    col.Name,
			Type:    ct,
			Codec:   codec,
			Inplace: col.Inplace,
		})
	}
	return meta, nil
}

// setup loads the configuration and builds the worker together with the
// stores and exporters it depends on.
func setup(ctx context.Context, configFile string) (*app, error) {
	cfg, err := config.LoadFile(configFile)
	if err != nil {
		return nil, err
	}

	obs := cfg.Observability
	if err := logger.Init(logger.Config{
		Level:       obs.LogLevel,
		Development: obs.Development,
		Encoding:    obs.LogEncoding,
	}); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	rt := &app{cfg: cfg, log: logger.Get().With(zap.String("component", "framefeed-cli"))}

	if obs.EnableTracing {
		tc := observability.DefaultTracingConfig()
		tc.ServiceVersion = version
		tc.SamplingRate = obs.TracingSampleRate
		tc.Writer = os.Stderr
		if err := observability.InitTracing(tc); err != nil {
			return nil, err
		}
	}
	if obs.EnableMetrics {
		rt.metrics = serveMetrics(obs.MetricsAddr, rt.log)
	}

	if rt.store, err = blobstore.Open(ctx, cfg.Storage); err != nil {
		rt.close()
		return nil, err
	}
	if rt.pg, err = registerSources(rt.store, cfg.Postgres); err != nil {
		rt.close()
		return nil, err
	}

	factories, configs, err := sourceConfigs(cfg.Sources)
	if err != nil {
		rt.close()
		return nil, err
	}
	meta, err := tableMeta(cfg.Table)
	if err != nil {
		rt.close()
		return nil, err
	}

	label := fmt.Sprintf("%d/%d", cfg.Worker.NodeID, cfg.Worker.WorkerID)
	rt.recorder = profiler.NewRecorder(0)
	rt.worker, err = loadworker.New(loadworker.Args{
		NodeID:           cfg.Worker.NodeID,
		WorkerID:         cfg.Worker.WorkerID,
		Profiler:         profiler.Multi{rt.recorder, profiler.NewTracing(label)},
		IOPacketSize:     cfg.Worker.IOPacketSize,
		WorkPacketSize:   cfg.Worker.WorkPacketSize,
		MaxSourceThreads: cfg.Worker.SourceThreads(),
		Factories:        factories,
		Configs:          configs,
		TableMeta:        meta,
		RaggedSources:    cfg.Worker.RaggedSources,
		Logger:           logger.Get(),
	})
	if err != nil {
		rt.close()
		return nil, err
	}
	return rt, nil
}

// serveMetrics exposes the default Prometheus registry on addr.
func serveMetrics(addr string, log *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	log.Info("serving metrics", zap.String("addr", addr))
	return srv
}

func (rt *app) close() {
	if rt.worker != nil {
		if err := rt.worker.Close(); err != nil {
			rt.log.Warn("failed to close worker", zap.Error(err))
		}
	}
	if rt.pg != nil {
		if err := rt.pg.Close(); err != nil {
			rt.log.Warn("failed to close postgres pool", zap.Error(err))
		}
	}
	if rt.store != nil {
		if err := rt.store.Close(); err != nil {
			rt.log.Warn("failed to close store", zap.Error(err))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if rt.metrics != nil {
		_ = rt.metrics.Shutdown(ctx)
	}
	if err := observability.Shutdown(ctx); err != nil {
		rt.log.Warn("failed to flush traces", zap.Error(err))
	}
	_ = logger.Sync()
}

// printReport writes the run summary and the profiler breakdown.
func printReport(w io.Writer, rep profiler.Report) {
	fmt.Fprintf(w, "elapsed: %v\n", rep.Elapsed.Round(time.Millisecond))
	for _, name := range rep.Names {
		s := rep.Intervals[name]
		fmt.Fprintf(w, "  %-28s count=%-6d total=%-12v mean=%-12v max=%v\n",
			name, s.Count, s.Total.Round(time.Microsecond), s.Mean().Round(time.Microsecond),
			s.Max.Round(time.Microsecond))
	}
	fmt.Fprintf(w, "rss: %d MB  heap: %d MB  cpu: %.1f%%  threads: %d  goroutines: %d\n",
		rep.RSSBytes/1024/1024, rep.HeapAllocMB, rep.CPUPercent, rep.NumThreads, rep.NumGoroutines)
}
