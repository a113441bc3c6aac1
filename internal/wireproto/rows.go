package wireproto

import "github.com/jkantaria/pglue/codec"

// FieldSpec names one result column and the codec used to parse it,
// replacing the source's JIT-compiled per-statement row constructor
// (spec.md §9 "JIT-compiled row constructor" design note) with a plain
// array of (name, codec) pairs.
type FieldSpec struct {
	Name  string
	Codec codec.Codec
}

// RowCtor builds Row values for one result shape (one RowDescription).
// Re-created whenever a new RowDescription arrives (prepared-statement
// reuse across Describe calls, or per-result-set under the simple-query
// protocol).
type RowCtor struct {
	fields []FieldSpec
}

// NewRowCtor constructs a RowCtor from already-resolved field specs;
// toFieldSpecs is what looks up each column's codec by its type OID.
func NewRowCtor(fields []FieldSpec) *RowCtor {
	return &RowCtor{fields: fields}
}

// Build parses raw, length-prefixed column bytes (nil meaning SQL NULL)
// into a Row using this RowCtor's field codecs, positionally.
func (c *RowCtor) Build(columns [][]byte) (Row, error) {
	row := Row{
		names:  make([]string, len(c.fields)),
		values: make([]any, len(c.fields)),
		index:  make(map[string]int, len(c.fields)),
	}
	for i, f := range c.fields {
		row.names[i] = f.Name
		var v any
		var err error
		if i < len(columns) {
			v, err = f.Codec.Parse(columns[i])
			if err != nil {
				return Row{}, err
			}
		}
		row.values[i] = v
		// Column-name collision policy: last-wins (spec.md §9).
		row.index[f.Name] = i
	}
	return row, nil
}

// Row is one result row, exposing both named (map-like) and positional
// (index) access, matching the source's dual named/iterable row shape.
type Row struct {
	names  []string
	values []any
	index  map[string]int
}

// Len returns the number of columns.
func (r Row) Len() int { return len(r.values) }

// At returns the i'th column value positionally, in the order the server
// declared the columns.
func (r Row) At(i int) any { return r.values[i] }

// Get returns the value of column name, and whether that name was present
// (last-wins on duplicate names).
func (r Row) Get(name string) (any, bool) {
	i, ok := r.index[name]
	if !ok {
		return nil, false
	}
	return r.values[i], true
}

// Names returns the column names in declared order.
func (r Row) Names() []string { return r.names }

// Values returns every column value in declared order.
func (r Row) Values() []any { return r.values }
