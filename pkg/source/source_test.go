package source

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/framefeed/pkg/errors"
)

type plainSource struct{}

func (plainSource) Validate() error { return nil }
func (plainSource) Read(context.Context, []ElementArgs) (Elements, error) {
	return nil, nil
}

type videoSource struct {
	plainSource
	meta *TableMeta
}

func (v *videoSource) SetTableMeta(m *TableMeta) { v.meta = m }
func (v *videoSource) VideoColumnInformation() (VideoCodecType, bool) {
	return VideoCodecH264, true
}

func TestCapabilityQueries(t *testing.T) {
	_, ok := AsColumnSource(plainSource{})
	assert.False(t, ok)
	_, ok = AsProfilerAware(plainSource{})
	assert.False(t, ok)

	cs, ok := AsColumnSource(&videoSource{})
	require.True(t, ok)
	codec, inplace := cs.VideoColumnInformation()
	assert.Equal(t, VideoCodecH264, codec)
	assert.True(t, inplace)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	f := FactoryFunc{FactoryName: "plain", Fn: func(Config) (Source, error) { return plainSource{}, nil }}

	require.NoError(t, r.Register(f))
	err := r.Register(f)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	got, err := r.Lookup("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", got.Name())

	_, err = r.Lookup("missing")
	assert.Error(t, err)
	assert.Equal(t, []string{"plain"}, r.List())
}

func TestParseTypes(t *testing.T) {
	ct, err := ParseColumnType("")
	require.NoError(t, err)
	assert.Equal(t, ColumnTypeBytes, ct)

	ct, err = ParseColumnType("VIDEO")
	require.NoError(t, err)
	assert.Equal(t, ColumnTypeVideo, ct)

	_, err = ParseColumnType("audio")
	assert.Error(t, err)

	codec, err := ParseVideoCodec("h265")
	require.NoError(t, err)
	assert.Equal(t, VideoCodecHEVC, codec)

	_, err = ParseVideoCodec("vp9")
	assert.Error(t, err)
}

func TestConfigHelpers(t *testing.T) {
	cfg := Config{
		OutputColumns:     []string{"frame"},
		OutputColumnTypes: []ColumnType{ColumnTypeVideo},
		Options:           map[string]string{"column": "frame", "empty": ""},
	}
	assert.Equal(t, 1, cfg.NumColumns())
	assert.Equal(t, ColumnTypeVideo, cfg.PrimaryType())
	assert.Equal(t, "frame", cfg.Option("column", "x"))
	assert.Equal(t, "x", cfg.Option("empty", "x"))
	assert.Equal(t, ColumnTypeBytes, Config{}.PrimaryType())

	meta := &TableMeta{Columns: []ColumnDescriptor{{Name: "frame", Codec: VideoCodecH264}}}
	col, ok := meta.Column("frame")
	require.True(t, ok)
	assert.Equal(t, VideoCodecH264, col.Codec)
	_, ok = (*TableMeta)(nil).Column("frame")
	assert.False(t, ok)

	assert.Equal(t, 5, Elements{[]byte("ab"), []byte("cde")}.Bytes())
}
