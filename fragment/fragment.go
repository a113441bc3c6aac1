// Package fragment builds SQL query text from a composition tree,
// producing injection-safe `$N` placeholder text alongside the ordered
// parameter values that belong at each position — spec.md's "Fragment
// formatter" (an external collaborator the engine consumes; implemented
// here since nothing else in this module can supply it).
package fragment

import "strings"

// Fragment is a node in a SQL composition tree. Values passed through SQL
// (via Param) are never interpolated into query text: they always become
// a `$N` placeholder plus an entry in the parameter list Format returns.
type Fragment interface {
	write(b *builder)
}

// Raw embeds literal SQL text verbatim — the caller is responsible for its
// safety (table/column DDL fragments, operators, keywords). Never use Raw
// for untrusted input; use Param instead.
type Raw string

func (r Raw) write(b *builder) { b.text.WriteString(string(r)) }

// Ident double-quote-escapes an identifier (table, column, schema name),
// doubling any embedded `"` per SQL identifier-quoting rules.
type Ident string

func (id Ident) write(b *builder) {
	b.text.WriteByte('"')
	b.text.WriteString(strings.ReplaceAll(string(id), `"`, `""`))
	b.text.WriteByte('"')
}

// Param is a value destined for a `$N` placeholder and the parameter list;
// it is never interpolated into the query text itself.
type Param struct {
	Value any
}

func (p Param) write(b *builder) {
	b.params = append(b.params, p.Value)
	b.text.WriteByte('$')
	b.text.WriteString(itoa(len(b.params)))
}

// Join concatenates Parts with Sep between them (e.g. ", " for a column
// list, " AND " for a predicate list).
type Join struct {
	Sep   string
	Parts []Fragment
}

func (j Join) write(b *builder) {
	for i, p := range j.Parts {
		if i > 0 {
			b.text.WriteString(j.Sep)
		}
		p.write(b)
	}
}

// Array renders Values as a bracketed ARRAY[$N, $N, ...] constructor,
// one placeholder/parameter per element.
type Array struct {
	Values []any
}

func (a Array) write(b *builder) {
	b.text.WriteString("ARRAY[")
	for i, v := range a.Values {
		if i > 0 {
			b.text.WriteString(", ")
		}
		Param{Value: v}.write(b)
	}
	b.text.WriteByte(']')
}

// Row renders Values as a parenthesized ($N, $N, ...) row constructor,
// without the optional ROW keyword.
type Row struct {
	Values []any
}

func (row Row) write(b *builder) {
	b.text.WriteByte('(')
	for i, v := range row.Values {
		if i > 0 {
			b.text.WriteString(", ")
		}
		Param{Value: v}.write(b)
	}
	b.text.WriteByte(')')
}

// Seq is a flat sequence of fragments concatenated with no separator — the
// structure SQL(parts, values) below builds internally, and usable
// directly when composing fragments programmatically.
type Seq []Fragment

func (s Seq) write(b *builder) {
	for _, f := range s {
		f.write(b)
	}
}

type builder struct {
	text   strings.Builder
	params []any
}

// Format walks f and returns the formatted query text (with `$N`
// placeholders) and the ordered parameter values those placeholders
// refer to.
func Format(f Fragment) (text string, params []any) {
	b := &builder{}
	f.write(b)
	return b.text.String(), b.params
}

// SQL is the builder-DSL equivalent of a tagged template: parts are the
// literal text segments, values the interpolated parameters, with
// len(parts) == len(values)+1, matching how a template-string tag would
// split `` `SELECT * FROM t WHERE id = ${id}` ``. It always treats every
// value as a Param — there is no way to accidentally splice SQL text in
// through a value.
func SQL(parts []string, values []any) Fragment {
	seq := make(Seq, 0, len(parts)+len(values))
	for i, part := range parts {
		if part != "" {
			seq = append(seq, Raw(part))
		}
		if i < len(values) {
			seq = append(seq, Param{Value: values[i]})
		}
	}
	return seq
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
