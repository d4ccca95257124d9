package source

import (
	"fmt"
	"strings"
)

// ColumnType is the declared type of a source output column.
type ColumnType string

const (
	// ColumnTypeBytes is an opaque per-row blob
	ColumnTypeBytes ColumnType = "bytes"
	// ColumnTypeVideo is a video column; elements may be encoded packets
	// rather than one element per row
	ColumnTypeVideo ColumnType = "video"
)

// ParseColumnType parses a configured column type; empty means bytes.
func ParseColumnType(s string) (ColumnType, error) {
	switch strings.ToLower(s) {
	case "", string(ColumnTypeBytes):
		return ColumnTypeBytes, nil
	case string(ColumnTypeVideo):
		return ColumnTypeVideo, nil
	default:
		return "", fmt.Errorf("unsupported column type: %q", s)
	}
}

// VideoCodecType is the encoding of a video column.
type VideoCodecType string

const (
	// VideoCodecRaw is unencoded frames
	VideoCodecRaw VideoCodecType = "raw"
	// VideoCodecH264 is H.264 encoded packets
	VideoCodecH264 VideoCodecType = "h264"
	// VideoCodecHEVC is H.265 encoded packets
	VideoCodecHEVC VideoCodecType = "hevc"
)

// ParseVideoCodec parses a configured codec name; empty means raw.
func ParseVideoCodec(s string) (VideoCodecType, error) {
	switch strings.ToLower(s) {
	case "", string(VideoCodecRaw):
		return VideoCodecRaw, nil
	case string(VideoCodecH264):
		return VideoCodecH264, nil
	case string(VideoCodecHEVC), "h265":
		return VideoCodecHEVC, nil
	default:
		return "", fmt.Errorf("unsupported video codec: %q", s)
	}
}

// ElementArgs is one row's read request.
type ElementArgs struct {
	RowID int64
	Args  []byte
}

// Elements is the sequence of raw payloads a source returns for one read.
type Elements [][]byte

// Bytes returns the total payload size.
func (e Elements) Bytes() int {
	n := 0
	for _, b := range e {
		n += len(b)
	}
	return n
}

// Config is the static descriptor of one source instance.
type Config struct {
	OutputColumns     []string
	OutputColumnTypes []ColumnType
	// Options carries implementation specific settings
	Options map[string]string
}

// NumColumns returns the number of output columns.
func (c Config) NumColumns() int {
	return len(c.OutputColumns)
}

// PrimaryType returns the declared type of the first output column.
func (c Config) PrimaryType() ColumnType {
	if len(c.OutputColumnTypes) == 0 {
		return ColumnTypeBytes
	}
	return c.OutputColumnTypes[0]
}

// Option returns the named option or def when unset.
func (c Config) Option(name, def string) string {
	if v, ok := c.Options[name]; ok && v != "" {
		return v
	}
	return def
}

// ColumnDescriptor describes one persisted column of a table.
type ColumnDescriptor struct {
	Name    string
	Type    ColumnType
	Codec   VideoCodecType
	Inplace bool
}

// TableMeta describes the persisted table column-backed sources read from.
type TableMeta struct {
	ID      int64
	Name    string
	Columns []ColumnDescriptor
}

// Column looks up a column by name.
func (t *TableMeta) Column(name string) (ColumnDescriptor, bool) {
	if t == nil {
		return ColumnDescriptor{}, false
	}
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnDescriptor{}, false
}
