package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for table names outside the known set or
	// relations missing from the backing store.
	ErrNotFound = errors.New("table not found")
	// ErrConnectivity is returned when the backing store cannot be reached.
	ErrConnectivity = errors.New("backing store unreachable")
	// ErrSchema is returned when a fetched relation does not match its schema.
	ErrSchema        = errors.New("schema mismatch")
	ErrUnknownColumn = errors.New("unknown column")
	ErrInvalidSpec   = errors.New("invalid aggregation spec")
)

// TableName identifies one of the fixed OECD relations.
type TableName string

const (
	Agri   TableName = "agri"
	Area   TableName = "area"
	Water  TableName = "water"
	Energy TableName = "energy"
)

// KnownTables lists every table the dashboard may load, in display order.
var KnownTables = []TableName{Agri, Area, Water, Energy}

// Column names shared by every table.
const (
	ColArea       = "Reference area"
	ColYear       = "Year"
	ColMeasure    = "Measure"
	ColValue      = "Value"
	ColUnit       = "Unit of measure"
	ColMultiplier = "Unit multiplier"

	ColNutrients = "Nutrients"
	ColWaterType = "Water type"
)

var commonColumns = []string{ColArea, ColYear, ColMeasure, ColValue, ColUnit, ColMultiplier}

// Schema is the typed shape a table must have once loaded.
type Schema struct {
	Table TableName
	// Dimensions are the table specific string columns required on top of
	// the common ones.
	Dimensions []string
}

var schemas = map[TableName]Schema{
	Agri:   {Table: Agri, Dimensions: []string{ColNutrients}},
	Area:   {Table: Area},
	Water:  {Table: Water, Dimensions: []string{ColWaterType}},
	Energy: {Table: Energy},
}

// SchemaFor returns the schema of a known table.
func SchemaFor(name TableName) (Schema, error) {
	s, ok := schemas[name]
	if !ok {
		return Schema{}, fmt.Errorf("%w: %q", ErrNotFound, string(name))
	}
	return s, nil
}

// Required returns every column the table must carry.
func (s Schema) Required() []string {
	out := make([]string, 0, len(commonColumns)+len(s.Dimensions))
	out = append(out, commonColumns...)
	return append(out, s.Dimensions...)
}

// ParseTableName validates free input against the fixed table set.
// Names never reach a query unless they pass here.
func ParseTableName(s string) (TableName, error) {
	name := TableName(s)
	if _, ok := schemas[name]; !ok {
		return "", fmt.Errorf("%w: %q", ErrNotFound, s)
	}
	return name, nil
}
