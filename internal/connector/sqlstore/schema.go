package sqlstore

import (
	"strings"

	"github.com/nainya/entitycore/pkg/model"
)

// persistedFields lists the fields stored as columns, in model order
func persistedFields(m *model.Model) []*model.Field {
	var out []*model.Field
	for _, f := range m.Fields() {
		if f.IsPersisted() {
			out = append(out, f)
		}
	}
	return out
}

// autoIncrementField returns the generated single-column primary, if any
func autoIncrementField(m *model.Model) (*model.Field, bool) {
	pf, ok := m.PrimaryField()
	if !ok || !pf.AutoIncrement {
		return nil, false
	}
	return pf, true
}

// CreateTable renders the table definition of m
func CreateTable(d Dialect, m *model.Model) string {
	auto, hasAuto := autoIncrementField(m)

	var defs []string
	for _, f := range persistedFields(m) {
		col := Quote(f.Column)
		if hasAuto && f == auto {
			defs = append(defs, d.AutoIncrementColumn(col))
			continue
		}
		def := col + " " + d.ColumnType(f.Type)
		if !f.Optional {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	if !hasAuto {
		defs = append(defs, "PRIMARY KEY ("+quoteAll(m.Primary().Columns())+")")
	}

	return "CREATE TABLE IF NOT EXISTS " + Quote(m.Table()) + " (\n\t" +
		strings.Join(defs, ",\n\t") + "\n)"
}

// CreateIndices renders one statement per secondary index. Prefix
// lengths are not portable across the two dialects and are ignored.
func CreateIndices(m *model.Model) []string {
	var out []string
	for _, idx := range m.Indices() {
		kind := "INDEX"
		if idx.Kind == model.UniqueIndex {
			kind = "UNIQUE INDEX"
		}
		cols := make([]string, len(idx.Items))
		for i, item := range idx.Items {
			cols[i] = Quote(item.Column) + " " + item.Sort.String()
		}
		name := Quote(m.Table() + "_" + idx.Name)
		out = append(out, "CREATE "+kind+" IF NOT EXISTS "+name+" ON "+Quote(m.Table())+
			" ("+strings.Join(cols, ", ")+")")
	}
	return out
}

func quoteAll(idents []string) string {
	q := make([]string, len(idents))
	for i, s := range idents {
		q[i] = Quote(s)
	}
	return strings.Join(q, ", ")
}
