package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

// agriRaw mirrors the shape of the OECD agri export with a few edge cases:
// string encoded numbers, float years, and null values/multipliers.
func agriRaw() *RawTable {
	return &RawTable{
		Columns: []string{"Reference area", "Measure", "Nutrients", "Unit of measure", "Unit multiplier", "Year", "Value"},
		Rows: [][]any{
			{"France", "Arable land", "", "Hectares", "Thousands", int64(2015), 18400.0},
			{"France", "Arable land", "", "Hectares", "Thousands", int64(2016), 18500.0},
			{"Germany", "Arable land", "", "Hectares", "Thousands", int64(2015), 11800.0},
			{"Germany", "Arable land", "", "Hectares", "Thousands", int64(2016), 11900.0},
			{"France", "Nitrogen balance", "Nitrogen", "Kilograms per hectare", "Units", int64(2015), 50.0},
			{"Germany", "Nitrogen balance", "Nitrogen", "Kilograms per hectare", "Units", int64(2015), 80.0},
			{"Mexico", "Nitrogen balance", "Nitrogen", "Kilograms per hectare", "Units", int64(2015), 50.0},
			{"Spain", "Nitrogen balance", "Nitrogen", "Kilograms per hectare", nil, int64(2015), nil},
			{"France", "Total greenhouse gas emissions", "", "Tonnes of CO2 equivalent", "Thousands", "2015", "76000"},
			{"Mexico", "Arable land", "", "Hectares", "Thousands", 2016.0, 23000.0},
		},
	}
}

func mustAgri(t *testing.T) *Table {
	t.Helper()
	tbl, err := BuildTable(Agri, agriRaw())
	if err != nil {
		t.Fatalf("BuildTable: %v", err)
	}
	return tbl
}

// fakeSource serves raw tables from memory and counts fetches.
type fakeSource struct {
	mu      sync.Mutex
	tables  map[TableName]*RawTable
	err     error
	fetches atomic.Int32
	gate    chan struct{} // when set, Fetch blocks until closed
}

func (f *fakeSource) Fetch(ctx context.Context, name TableName) (*RawTable, error) {
	f.fetches.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	raw, ok := f.tables[name]
	if !ok {
		return nil, errors.Join(ErrNotFound, errors.New(string(name)))
	}
	return raw, nil
}
