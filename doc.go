// Package framefeed is the load stage of a column-oriented pull pipeline.
//
// A load worker receives one unit of work at a time. The unit names, for
// every configured source, the rows to read and the arguments that locate
// them. The worker then hands out fixed-size chunks of rows on demand. Each
// chunk is read from all sources concurrently on a bounded task pool and
// returned as one batch with one element column per source.
//
// # Architecture
//
// 1. Sources: pluggable readers built from a registered factory and a static
// column descriptor. Optional capabilities (profiler injection, table
// metadata, video column information) are discovered at runtime.
//
// 2. Load worker: validates sources at construction, computes per-source
// row windows, fans reads out, waits on a barrier and checks every source
// produced what it promised.
//
// 3. Driver: pulls work entries (JSON lines or Avro), drives the worker to
// exhaustion and passes batches to an evaluator (statistics or Arrow IPC
// objects in a blob store).
//
// # Quick Start
//
//	import (
//	    "github.com/ajitpratap0/framefeed/internal/loadworker"
//	    "github.com/ajitpratap0/framefeed/pkg/source"
//	    "github.com/ajitpratap0/framefeed/pkg/source/memory"
//	)
//
//	w, err := loadworker.New(loadworker.Args{
//	    WorkPacketSize: 250,
//	    Factories:      []source.Factory{memory.Factory{}},
//	    Configs:        []source.Config{{OutputColumns: []string{"frame"}}},
//	})
//	if err != nil {
//	    return err
//	}
//	defer w.Close()
//
//	if err := w.Feed(entry); err != nil {
//	    return err
//	}
//	for !w.Done() {
//	    batch, _, err := w.Yield(ctx, 250)
//	    ...
//	}
//
// # Key Packages
//
//	internal/loadworker - The load worker
//	internal/pipeline   - Work entry driver and evaluators
//	pkg/source          - Source contract, registry and built-in sources
//	pkg/workentry       - Work entries, batches and their codecs
//	pkg/blobstore       - Local, S3 and GCS object stores
//	pkg/taskpool        - Bounded task runner with a completion barrier
//	pkg/profiler        - Named interval recording
//	pkg/config          - YAML configuration
//	pkg/errors          - Structured error handling
//	pkg/logger          - Structured logging
//	pkg/metrics         - Prometheus metrics
//
// # Configuration
//
// The worker is configured from a YAML file; ${VAR_NAME} references are
// expanded from the environment, and a .env file is loaded by the CLI.
//
//	framefeed validate -c worker.yaml
//	framefeed run -c worker.yaml -e entries.jsonl -o batches
package framefeed
