package docstore

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/datainsight/datainsight/internal/dataset"
)

type columnKind int

const (
	kindNull columnKind = iota
	kindInt
	kindFloat
	kindBool
	kindTime
	kindString
)

type encodedBatch struct {
	Data        []byte
	RecordCount int64
	Columns     []string
}

// encodeBatch writes one batch as a Parquet object whose schema follows the
// converted values. Values left raw by fail-soft conversion turn their column
// into a string column for this batch only; integers mixed with floats widen
// to double.
func encodeBatch(rows []dataset.Row) (encodedBatch, error) {
	if len(rows) == 0 {
		return encodedBatch{}, fmt.Errorf("rows are required")
	}

	order := dataset.FieldOrder(rows)
	kinds := make(map[string]columnKind, len(order))
	for _, row := range rows {
		for _, cell := range row {
			kinds[cell.Name] = mergeKind(kinds[cell.Name], kindOf(cell.Value))
		}
	}

	group := parquet.Group{}
	for _, name := range order {
		group[name] = parquet.Optional(nodeFor(kinds[name]))
	}
	schema := parquet.NewSchema("document", group)

	columnIndex := make(map[string]int, len(order))
	for index, path := range schema.Columns() {
		columnIndex[path[0]] = index
	}

	parquetRows := make([]parquet.Row, 0, len(rows))
	for _, row := range rows {
		values := make(parquet.Row, len(order))
		for _, index := range columnIndex {
			values[index] = parquet.NullValue().Level(0, 0, index)
		}
		for _, cell := range row {
			index := columnIndex[cell.Name]
			value, ok := leafValue(kinds[cell.Name], cell.Value)
			if !ok {
				continue
			}
			values[index] = value.Level(0, 1, index)
		}
		parquetRows = append(parquetRows, values)
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewWriter(buf, schema)
	if _, err := writer.WriteRows(parquetRows); err != nil {
		return encodedBatch{}, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return encodedBatch{}, fmt.Errorf("close parquet writer: %w", err)
	}

	return encodedBatch{
		Data:        buf.Bytes(),
		RecordCount: int64(len(rows)),
		Columns:     order,
	}, nil
}

func kindOf(value any) columnKind {
	switch value.(type) {
	case nil:
		return kindNull
	case int64, int:
		return kindInt
	case float64:
		return kindFloat
	case bool:
		return kindBool
	case time.Time:
		return kindTime
	default:
		return kindString
	}
}

func mergeKind(current, next columnKind) columnKind {
	switch {
	case current == next || next == kindNull:
		return current
	case current == kindNull:
		return next
	case (current == kindInt && next == kindFloat) || (current == kindFloat && next == kindInt):
		return kindFloat
	default:
		return kindString
	}
}

func nodeFor(kind columnKind) parquet.Node {
	switch kind {
	case kindInt:
		return parquet.Leaf(parquet.Int64Type)
	case kindFloat:
		return parquet.Leaf(parquet.DoubleType)
	case kindBool:
		return parquet.Leaf(parquet.BooleanType)
	case kindTime:
		return parquet.Timestamp(parquet.Millisecond)
	default:
		return parquet.String()
	}
}

func leafValue(kind columnKind, value any) (parquet.Value, bool) {
	if value == nil {
		return parquet.Value{}, false
	}
	switch kind {
	case kindInt:
		switch typed := value.(type) {
		case int64:
			return parquet.Int64Value(typed), true
		case int:
			return parquet.Int64Value(int64(typed)), true
		}
	case kindFloat:
		switch typed := value.(type) {
		case float64:
			return parquet.DoubleValue(typed), true
		case int64:
			return parquet.DoubleValue(float64(typed)), true
		case int:
			return parquet.DoubleValue(float64(typed)), true
		}
	case kindBool:
		if typed, ok := value.(bool); ok {
			return parquet.BooleanValue(typed), true
		}
	case kindTime:
		if typed, ok := value.(time.Time); ok {
			return parquet.Int64Value(typed.UnixMilli()), true
		}
	}
	return parquet.ByteArrayValue([]byte(formatValue(value))), true
}

func formatValue(value any) string {
	switch typed := value.(type) {
	case string:
		return typed
	case int64:
		return strconv.FormatInt(typed, 10)
	case int:
		return strconv.Itoa(typed)
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(typed)
	case time.Time:
		return typed.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(typed)
	}
}
