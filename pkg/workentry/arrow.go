package workentry

import (
	"fmt"
	"strconv"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Arrow schema metadata keys attached to column records.
const (
	MetaColumnType    = "framefeed.column_type"
	MetaVideoEncoding = "framefeed.video_encoding"
	MetaInplace       = "framefeed.inplace"
	MetaDevice        = "framefeed.device"
	MetaTableID       = "framefeed.table_id"
	MetaJobIndex      = "framefeed.job_index"
	MetaTaskIndex     = "framefeed.task_index"
)

// ColumnSchema returns the schema of source i's record.
func (e *EvalWorkEntry) ColumnSchema(i int) *arrow.Schema {
	md := arrow.NewMetadata(
		[]string{MetaColumnType, MetaVideoEncoding, MetaInplace, MetaDevice, MetaTableID, MetaJobIndex, MetaTaskIndex},
		[]string{
			string(e.ColumnTypes[i]),
			string(e.VideoEncoding[i]),
			strconv.FormatBool(e.InplaceVideo[i]),
			e.Devices[i].String(),
			strconv.FormatInt(e.TableID, 10),
			strconv.FormatInt(e.JobIndex, 10),
			strconv.FormatInt(e.TaskIndex, 10),
		},
	)
	return arrow.NewSchema([]arrow.Field{
		{Name: "row_id", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
		{Name: "element", Type: arrow.BinaryTypes.Binary},
	}, &md)
}

// ColumnRecord converts source i's column into an Arrow record. Row ids are
// paired with elements positionally; when a video source returned a
// different element count the row_id column is null. The caller releases
// the record.
func (e *EvalWorkEntry) ColumnRecord(i int, mem memory.Allocator) (arrow.Record, error) {
	if i < 0 || i >= e.NumSources() {
		return nil, fmt.Errorf("column %d out of range [0, %d)", i, e.NumSources())
	}
	if mem == nil {
		mem = memory.NewGoAllocator()
	}

	b := array.NewRecordBuilder(mem, e.ColumnSchema(i))
	defer b.Release()

	ids := b.Field(0).(*array.Int64Builder)
	elems := b.Field(1).(*array.BinaryBuilder)

	col := e.Columns[i]
	aligned := len(col) == len(e.RowIDs[i])
	ids.Reserve(len(col))
	elems.Reserve(len(col))
	for j, el := range col {
		if aligned {
			ids.Append(e.RowIDs[i][j])
		} else {
			ids.AppendNull()
		}
		elems.Append(el)
	}
	return b.NewRecord(), nil
}
