package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
worker:
  node_id: 2
  worker_id: 1
  work_packet_size: 4
  max_source_threads: 3
table:
  id: 11
  name: clips
  columns:
    - {name: frame, type: video, codec: h264, inplace: true}
sources:
  - name: column
    columns: [{name: frame, type: video}]
  - name: postgres
    columns: [{name: meta, type: bytes}]
    options:
      table: ${FRAMEFEED_TEST_TABLE}
storage:
  backend: local
  root: /data
`

func TestLoadFile(t *testing.T) {
	t.Setenv("FRAMEFEED_TEST_TABLE", "clip_meta")
	path := filepath.Join(t.TempDir(), "loader.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Worker.NodeID)
	assert.Equal(t, 4, cfg.Worker.WorkPacketSize)
	assert.Equal(t, 1000, cfg.Worker.IOPacketSize, "default kept")
	assert.Equal(t, 3, cfg.Worker.SourceThreads())
	require.Len(t, cfg.Sources, 2)
	assert.Equal(t, "clip_meta", cfg.Sources[1].Options["table"])
	assert.Equal(t, "h264", cfg.Table.Columns[0].Codec)
	assert.True(t, cfg.Table.Columns[0].Inplace)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := NewDefault()
		cfg.Sources = []SourceSpec{{Name: "memory", Columns: []ColumnConfig{{Name: "a"}}}}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"no sources", func(c *Config) { c.Sources = nil }, "at least one source"},
		{"zero work packet", func(c *Config) { c.Worker.WorkPacketSize = 0 }, "work_packet_size"},
		{"bad column type", func(c *Config) { c.Sources[0].Columns[0].Type = "audio" }, "unsupported column type"},
		{"bad backend", func(c *Config) { c.Storage.Backend = "ftp" }, "unsupported storage backend"},
		{"s3 without bucket", func(c *Config) { c.Storage.Backend = "s3" }, "bucket is required"},
		{"unnamed source", func(c *Config) { c.Sources[0].Name = "" }, "name is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSourceThreadsFallback(t *testing.T) {
	w := WorkerConfig{}
	assert.Equal(t, DefaultMaxSourceThreads, w.SourceThreads())
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := NewDefault()
	cfg.Worker.NodeID = 9
	require.NoError(t, Save(path, cfg))

	loaded := &Config{}
	require.NoError(t, Load(path, loaded))
	assert.Equal(t, 9, loaded.Worker.NodeID)
}
