package dataset

import (
	"strings"
)

type FieldType string

const (
	TypeString  FieldType = "string"
	TypeInteger FieldType = "integer"
	TypeFloat   FieldType = "float"
	TypeBoolean FieldType = "boolean"
	TypeDate    FieldType = "date"
	// TypeUnknown is only reported by the deterministic classifier for empty samples.
	TypeUnknown FieldType = "unknown"
)

func ParseFieldType(raw string) (FieldType, bool) {
	switch FieldType(strings.ToLower(strings.TrimSpace(raw))) {
	case TypeString:
		return TypeString, true
	case TypeInteger:
		return TypeInteger, true
	case TypeFloat:
		return TypeFloat, true
	case TypeBoolean:
		return TypeBoolean, true
	case TypeDate:
		return TypeDate, true
	default:
		return "", false
	}
}

// FieldTypeMap is inferred once per ingestion run and never mutated afterwards.
type FieldTypeMap map[string]FieldType

type Cell struct {
	Name  string
	Value any
}

// Row keeps the source column order. A nil Value means the cell was absent or empty.
type Row []Cell

func (r Row) Lookup(name string) (any, bool) {
	for _, cell := range r {
		if cell.Name == name {
			return cell.Value, true
		}
	}
	return nil, false
}

func (r Row) Names() []string {
	names := make([]string, 0, len(r))
	for _, cell := range r {
		names = append(names, cell.Name)
	}
	return names
}

func (r Row) Map() map[string]any {
	out := make(map[string]any, len(r))
	for _, cell := range r {
		out[cell.Name] = cell.Value
	}
	return out
}

func (r Row) Clone() Row {
	out := make(Row, len(r))
	copy(out, r)
	return out
}

// FieldOrder returns the union of field names across rows in first-seen order.
func FieldOrder(rows []Row) []string {
	seen := map[string]struct{}{}
	order := make([]string, 0)
	for _, row := range rows {
		for _, cell := range row {
			if _, ok := seen[cell.Name]; ok {
				continue
			}
			seen[cell.Name] = struct{}{}
			order = append(order, cell.Name)
		}
	}
	return order
}
