package report

import (
	"fmt"

	"agridash/internal/engine"
	"agridash/internal/export"
)

const previewRows = 10

var tableTitles = map[engine.TableName]string{
	engine.Agri:   "Agri-environmental indicators",
	engine.Area:   "Agricultural land area",
	engine.Water:  "Freshwater abstraction",
	engine.Energy: "Agricultural energy consumption",
}

func buildIntro(b *builder) error {
	tables := make([]*engine.Table, len(engine.KnownTables))
	for i, name := range engine.KnownTables {
		t, err := b.load(name)
		if err != nil {
			return err
		}
		tables[i] = t
	}

	overview := engine.NewFrame(
		engine.Column{Name: "Table", Kind: engine.KindString},
		engine.Column{Name: "Description", Kind: engine.KindString},
		engine.Column{Name: "Rows", Kind: engine.KindInt},
		engine.Column{Name: "Countries", Kind: engine.KindInt},
		engine.Column{Name: "Measures", Kind: engine.KindInt},
		engine.Column{Name: "First year", Kind: engine.KindInt},
		engine.Column{Name: "Last year", Kind: engine.KindInt},
	)
	for _, t := range tables {
		all := t.All()
		var first, last any
		if years := all.Years(); len(years) > 0 {
			first, last = int64(years[0]), int64(years[len(years)-1])
		}
		overview.Append(string(t.Name), tableTitles[t.Name], int64(t.Len()),
			int64(len(all.Distinct(engine.ColArea))), int64(len(all.Distinct(engine.ColMeasure))), first, last)
	}
	b.table("overview", "Datasets", overview)

	for _, t := range tables {
		frame := t.All().Frame()
		b.table("preview-"+string(t.Name), fmt.Sprintf("%s (first %d rows)", tableTitles[t.Name], previewRows),
			frame.Head(previewRows))
		b.download(string(t.Name), tableTitles[t.Name], export.FileName("csv", string(t.Name)), frame)
	}
	return nil
}
