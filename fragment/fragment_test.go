package fragment

import "testing"

func TestFormatSimpleParam(t *testing.T) {
	f := Seq{Raw("SELECT * FROM users WHERE id = "), Param{Value: 42}}
	text, params := Format(f)
	if text != "SELECT * FROM users WHERE id = $1" {
		t.Errorf("text = %q", text)
	}
	if len(params) != 1 || params[0] != 42 {
		t.Errorf("params = %v", params)
	}
}

func TestFormatMultipleParams(t *testing.T) {
	f := Seq{
		Raw("INSERT INTO t (a, b) VALUES ("),
		Param{Value: "x"},
		Raw(", "),
		Param{Value: 7},
		Raw(")"),
	}
	text, params := Format(f)
	want := "INSERT INTO t (a, b) VALUES ($1, $2)"
	if text != want {
		t.Errorf("text = %q, want %q", text, want)
	}
	if len(params) != 2 || params[0] != "x" || params[1] != 7 {
		t.Errorf("params = %v", params)
	}
}

func TestIdentEscaping(t *testing.T) {
	text, params := Format(Ident(`weird"name`))
	if text != `"weird""name"` {
		t.Errorf("text = %q", text)
	}
	if len(params) != 0 {
		t.Errorf("expected no params from a bare identifier, got %v", params)
	}
}

func TestJoin(t *testing.T) {
	f := Join{Sep: " AND ", Parts: []Fragment{
		Seq{Ident("a"), Raw(" = "), Param{Value: 1}},
		Seq{Ident("b"), Raw(" = "), Param{Value: 2}},
	}}
	text, params := Format(f)
	want := `"a" = $1 AND "b" = $2`
	if text != want {
		t.Errorf("text = %q, want %q", text, want)
	}
	if len(params) != 2 {
		t.Errorf("params = %v", params)
	}
}

func TestArrayAndRow(t *testing.T) {
	text, params := Format(Array{Values: []any{1, 2, 3}})
	if text != "ARRAY[$1, $2, $3]" {
		t.Errorf("Array text = %q", text)
	}
	if len(params) != 3 {
		t.Errorf("Array params = %v", params)
	}

	text, params = Format(Row{Values: []any{"a", "b"}})
	if text != "($1, $2)" {
		t.Errorf("Row text = %q", text)
	}
	if len(params) != 2 {
		t.Errorf("Row params = %v", params)
	}
}

func TestSQLTemplateDSL(t *testing.T) {
	// Equivalent to a tagged template: `SELECT * FROM t WHERE id = ${id} AND name = ${name}`
	f := SQL(
		[]string{"SELECT * FROM t WHERE id = ", " AND name = ", ""},
		[]any{42, "o'brien"},
	)
	text, params := Format(f)
	want := "SELECT * FROM t WHERE id = $1 AND name = $2"
	if text != want {
		t.Errorf("text = %q, want %q", text, want)
	}
	if len(params) != 2 || params[1] != "o'brien" {
		t.Errorf("params = %v; injection-unsafe values must never be spliced into text", params)
	}
}

func TestSQLNeverSplicesValueIntoText(t *testing.T) {
	malicious := "x'; DROP TABLE users; --"
	f := SQL([]string{"SELECT * FROM t WHERE name = ", ""}, []any{malicious})
	text, params := Format(f)
	if text != "SELECT * FROM t WHERE name = $1" {
		t.Errorf("text = %q; expected the value to never appear in the formatted text", text)
	}
	if params[0] != malicious {
		t.Errorf("params[0] = %v, want %q", params[0], malicious)
	}
}
