package export

import (
	"fmt"
	"io"
	"strings"

	"agridash/internal/engine"

	"github.com/xuri/excelize/v2"
)

// Sheet is one frame written to its own worksheet.
type Sheet struct {
	Name  string
	Frame *engine.Frame
}

// WriteXLSX writes every sheet into a single workbook.
func WriteXLSX(w io.Writer, sheets ...Sheet) error {
	if len(sheets) == 0 {
		return fmt.Errorf("export: workbook needs at least one sheet")
	}
	f := excelize.NewFile()
	defer f.Close()

	for i, s := range sheets {
		name := SheetName(s.Name)
		if i == 0 {
			if err := f.SetSheetName("Sheet1", name); err != nil {
				return fmt.Errorf("export: rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("export: new sheet %q: %w", name, err)
		}
		if err := writeSheet(f, name, s.Frame); err != nil {
			return err
		}
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("export: write xlsx: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, fr *engine.Frame) error {
	for i, c := range fr.Columns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, c.Name); err != nil {
			return err
		}
	}
	for r, row := range fr.Rows {
		for i, v := range row {
			if v == nil {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(i+1, r+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return fmt.Errorf("export: %s!%s: %w", sheet, cell, err)
			}
		}
	}
	return nil
}

// SheetName makes s acceptable as a worksheet name: at most 31 characters,
// none of : \ / ? * [ ].
func SheetName(s string) string {
	s = strings.Map(func(r rune) rune {
		if strings.ContainsRune(`:\/?*[]`, r) {
			return '_'
		}
		return r
	}, strings.TrimSpace(s))
	if s == "" {
		s = "data"
	}
	if r := []rune(s); len(r) > 31 {
		s = string(r[:31])
	}
	return s
}
