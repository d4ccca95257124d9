// Package config provides configuration management for framefeed load
// workers.
//
// A single Config structure describes one load-stage process: the worker's
// identity and chunking hints, the table column-backed sources read from, the
// per-column source specs, the blob store, and observability settings.
//
// # Usage
//
//	cfg, err := config.LoadFile("loader.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//
// # Environment Variable Substitution
//
// Values of the form ${VAR_NAME} are replaced with the environment variable
// before the YAML is parsed, so credentials stay out of config files:
//
//	postgres:
//	  dsn: ${FRAMEFEED_PG_DSN}
//
// # Defaults
//
// NewDefault fills every section except Sources and Table.Columns. In
// particular Worker.MaxSourceThreads defaults to DefaultMaxSourceThreads.
package config
