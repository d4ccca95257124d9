// Package workentry defines the units exchanged by the load stage: the
// LoadWorkEntry describing which rows to fetch, and the EvalWorkEntry batch
// handed to the evaluation stage.
package workentry

import (
	"fmt"

	"github.com/ajitpratap0/framefeed/pkg/source"
)

// SourceArgs holds one source's per-row arguments for a unit of work. The
// three slices are index-aligned.
type SourceArgs struct {
	Args         [][]byte `json:"args"`
	InputRowIDs  []int64  `json:"input_row_ids"`
	OutputRowIDs []int64  `json:"output_row_ids"`
}

// Len returns the number of rows, i.e. the number of argument blobs.
func (s SourceArgs) Len() int {
	return len(s.Args)
}

// Validate checks that the three row-indexed sequences have equal length.
func (s SourceArgs) Validate() error {
	if len(s.InputRowIDs) != len(s.Args) || len(s.OutputRowIDs) != len(s.Args) {
		return fmt.Errorf("args, input row ids and output row ids differ in length (%d, %d, %d)",
			len(s.Args), len(s.InputRowIDs), len(s.OutputRowIDs))
	}
	return nil
}

// LoadWorkEntry is one unit of work for a load worker. It must not be
// modified after being fed to a worker.
type LoadWorkEntry struct {
	TableID    int64        `json:"table_id"`
	JobIndex   int64        `json:"job_index"`
	TaskIndex  int64        `json:"task_index"`
	SourceArgs []SourceArgs `json:"source_args"`
}

// MaxRows returns the largest per-source row count.
func (e *LoadWorkEntry) MaxRows() int64 {
	var total int64
	for _, sa := range e.SourceArgs {
		if n := int64(sa.Len()); n > total {
			total = n
		}
	}
	return total
}

// String identifies the entry in logs.
func (e *LoadWorkEntry) String() string {
	return fmt.Sprintf("table=%d job=%d task=%d", e.TableID, e.JobIndex, e.TaskIndex)
}

// DeviceType is where a column's buffers live.
type DeviceType string

const (
	// DeviceCPU is host memory
	DeviceCPU DeviceType = "cpu"
	// DeviceGPU is accelerator memory
	DeviceGPU DeviceType = "gpu"
)

// DeviceHandle identifies one device.
type DeviceHandle struct {
	Type DeviceType `json:"type"`
	ID   int        `json:"id"`
}

// CPUDevice is the handle every loaded column carries; later stages decide
// device placement.
var CPUDevice = DeviceHandle{Type: DeviceCPU, ID: 0}

// String formats the handle as type:id.
func (d DeviceHandle) String() string {
	return fmt.Sprintf("%s:%d", d.Type, d.ID)
}

// EvalWorkEntry is one column-aligned batch. Every per-source slice has one
// slot per source, in source order.
type EvalWorkEntry struct {
	TableID   int64
	JobIndex  int64
	TaskIndex int64

	Columns       []source.Elements
	RowIDs        [][]int64
	ColumnTypes   []source.ColumnType
	VideoEncoding []source.VideoCodecType
	InplaceVideo  []bool
	Devices       []DeviceHandle
}

// NewEvalWorkEntry allocates a batch for entry with n source slots.
func NewEvalWorkEntry(entry *LoadWorkEntry, n int) *EvalWorkEntry {
	return &EvalWorkEntry{
		TableID:       entry.TableID,
		JobIndex:      entry.JobIndex,
		TaskIndex:     entry.TaskIndex,
		Columns:       make([]source.Elements, n),
		RowIDs:        make([][]int64, n),
		ColumnTypes:   make([]source.ColumnType, n),
		VideoEncoding: make([]source.VideoCodecType, n),
		InplaceVideo:  make([]bool, n),
		Devices:       make([]DeviceHandle, n),
	}
}

// NumSources returns the number of source slots.
func (e *EvalWorkEntry) NumSources() int {
	return len(e.Columns)
}

// Rows returns the number of rows in the chunk: the longest source window.
// Sources are row aligned, so rows are not summed across them.
func (e *EvalWorkEntry) Rows() int {
	n := 0
	for _, ids := range e.RowIDs {
		if len(ids) > n {
			n = len(ids)
		}
	}
	return n
}

// Bytes returns the total element payload size.
func (e *EvalWorkEntry) Bytes() int {
	n := 0
	for _, c := range e.Columns {
		n += c.Bytes()
	}
	return n
}
