package workentry

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	gojson "github.com/goccy/go-json"
	"github.com/linkedin/goavro/v2"

	"github.com/ajitpratap0/framefeed/pkg/errors"
)

// Reader yields units of work until io.EOF.
type Reader interface {
	Next() (*LoadWorkEntry, error)
}

// Writer persists units of work.
type Writer interface {
	Write(entry *LoadWorkEntry) error
	Close() error
}

// Format is an on-disk encoding of work entries.
type Format string

const (
	// FormatJSONL is one JSON object per line
	FormatJSONL Format = "jsonl"
	// FormatAvro is an Avro object container file
	FormatAvro Format = "avro"
)

// FormatFromPath guesses the format from a file extension.
func FormatFromPath(path string) Format {
	if strings.HasSuffix(path, ".avro") {
		return FormatAvro
	}
	return FormatJSONL
}

// NewReader creates a Reader for format.
func NewReader(r io.Reader, format Format) (Reader, error) {
	switch format {
	case FormatJSONL, "json", "":
		return NewJSONReader(r), nil
	case FormatAvro:
		return NewAvroReader(r)
	default:
		return nil, errors.New(errors.ErrorTypeConfig, fmt.Sprintf("unsupported work entry format: %s", format))
	}
}

// NewWriter creates a Writer for format.
func NewWriter(w io.Writer, format Format) (Writer, error) {
	switch format {
	case FormatJSONL, "json", "":
		return NewJSONWriter(w), nil
	case FormatAvro:
		return NewAvroWriter(w)
	default:
		return nil, errors.New(errors.ErrorTypeConfig, fmt.Sprintf("unsupported work entry format: %s", format))
	}
}

// JSONReader decodes a stream of JSON work entries.
type JSONReader struct {
	dec *gojson.Decoder
}

// NewJSONReader creates a JSONReader.
func NewJSONReader(r io.Reader) *JSONReader {
	return &JSONReader{dec: gojson.NewDecoder(bufio.NewReader(r))}
}

// Next implements Reader.
func (r *JSONReader) Next() (*LoadWorkEntry, error) {
	var e LoadWorkEntry
	if err := r.dec.Decode(&e); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to decode work entry")
	}
	return &e, nil
}

// JSONWriter encodes work entries as JSON lines.
type JSONWriter struct {
	enc *gojson.Encoder
}

// NewJSONWriter creates a JSONWriter.
func NewJSONWriter(w io.Writer) *JSONWriter {
	enc := gojson.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &JSONWriter{enc: enc}
}

// Write implements Writer.
func (w *JSONWriter) Write(entry *LoadWorkEntry) error {
	if err := w.enc.Encode(entry); err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to encode work entry")
	}
	return nil
}

// Close implements Writer.
func (w *JSONWriter) Close() error { return nil }

// AvroSchema is the Avro schema of a LoadWorkEntry.
const AvroSchema = `{
  "type": "record",
  "name": "LoadWorkEntry",
  "namespace": "framefeed",
  "fields": [
    {"name": "table_id", "type": "long"},
    {"name": "job_index", "type": "long"},
    {"name": "task_index", "type": "long"},
    {"name": "source_args", "type": {"type": "array", "items": {
      "type": "record",
      "name": "SourceArgs",
      "fields": [
        {"name": "args", "type": {"type": "array", "items": "bytes"}},
        {"name": "input_row_ids", "type": {"type": "array", "items": "long"}},
        {"name": "output_row_ids", "type": {"type": "array", "items": "long"}}
      ]
    }}}
  ]
}`

// AvroReader reads work entries from an Avro object container file.
type AvroReader struct {
	ocf *goavro.OCFReader
}

// NewAvroReader creates an AvroReader.
func NewAvroReader(r io.Reader) (*AvroReader, error) {
	ocf, err := goavro.NewOCFReader(r)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to open avro container")
	}
	return &AvroReader{ocf: ocf}, nil
}

// Next implements Reader.
func (r *AvroReader) Next() (*LoadWorkEntry, error) {
	if !r.ocf.Scan() {
		if err := r.ocf.Err(); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to scan avro container")
		}
		return nil, io.EOF
	}
	datum, err := r.ocf.Read()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to read avro record")
	}
	return fromAvro(datum)
}

// AvroWriter writes work entries to an Avro object container file.
type AvroWriter struct {
	ocf *goavro.OCFWriter
}

// NewAvroWriter creates an AvroWriter with AvroSchema.
func NewAvroWriter(w io.Writer) (*AvroWriter, error) {
	ocf, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:      w,
		Schema: AvroSchema,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to create avro container")
	}
	return &AvroWriter{ocf: ocf}, nil
}

// Write implements Writer.
func (w *AvroWriter) Write(entry *LoadWorkEntry) error {
	if err := w.ocf.Append([]interface{}{toAvro(entry)}); err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to append avro record")
	}
	return nil
}

// Close implements Writer. Records are flushed on every Append.
func (w *AvroWriter) Close() error { return nil }

func toAvro(e *LoadWorkEntry) map[string]interface{} {
	sources := make([]interface{}, len(e.SourceArgs))
	for i, sa := range e.SourceArgs {
		args := make([]interface{}, len(sa.Args))
		for j, a := range sa.Args {
			args[j] = a
		}
		sources[i] = map[string]interface{}{
			"args":           args,
			"input_row_ids":  int64s(sa.InputRowIDs),
			"output_row_ids": int64s(sa.OutputRowIDs),
		}
	}
	return map[string]interface{}{
		"table_id":    e.TableID,
		"job_index":   e.JobIndex,
		"task_index":  e.TaskIndex,
		"source_args": sources,
	}
}

func int64s(ids []int64) []interface{} {
	out := make([]interface{}, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

func fromAvro(datum interface{}) (*LoadWorkEntry, error) {
	rec, ok := datum.(map[string]interface{})
	if !ok {
		return nil, errors.New(errors.ErrorTypeData, fmt.Sprintf("unexpected avro datum %T", datum))
	}
	e := &LoadWorkEntry{
		TableID:   asInt64(rec["table_id"]),
		JobIndex:  asInt64(rec["job_index"]),
		TaskIndex: asInt64(rec["task_index"]),
	}
	sources, _ := rec["source_args"].([]interface{})
	for _, s := range sources {
		sm, ok := s.(map[string]interface{})
		if !ok {
			return nil, errors.New(errors.ErrorTypeData, fmt.Sprintf("unexpected source args %T", s))
		}
		var sa SourceArgs
		args, _ := sm["args"].([]interface{})
		for _, a := range args {
			b, _ := a.([]byte)
			sa.Args = append(sa.Args, b)
		}
		sa.InputRowIDs = asInt64s(sm["input_row_ids"])
		sa.OutputRowIDs = asInt64s(sm["output_row_ids"])
		e.SourceArgs = append(e.SourceArgs, sa)
	}
	return e, nil
}

func asInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int:
		return int64(n)
	default:
		return 0
	}
}

func asInt64s(v interface{}) []int64 {
	items, _ := v.([]interface{})
	out := make([]int64, len(items))
	for i, it := range items {
		out[i] = asInt64(it)
	}
	return out
}

// ReadAll drains r.
func ReadAll(r Reader) ([]*LoadWorkEntry, error) {
	var out []*LoadWorkEntry
	for {
		e, err := r.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, e)
	}
}
