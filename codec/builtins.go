package codec

import (
	"encoding/hex"
	"encoding/json"
	"strconv"
	"time"
)

// textCodec is the identity/fallback codec: any OID this registry doesn't
// recognize falls back to it (spec.md §4.1's codec-fallback invariant).
type textCodec struct{}

func (textCodec) Name() string { return "text" }

func (textCodec) Parse(b []byte) (any, error) {
	if b == nil {
		return nil, nil
	}
	return string(b), nil
}

func (textCodec) Format(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	switch t := v.(type) {
	case string:
		return []byte(t), nil
	case []byte:
		return t, nil
	case fmtStringer:
		return []byte(t.String()), nil
	default:
		return []byte(toText(v)), nil
	}
}

type fmtStringer interface{ String() string }

func toText(v any) string {
	switch t := v.(type) {
	case int:
		return strconv.Itoa(t)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case bool:
		if t {
			return "t"
		}
		return "f"
	default:
		return ""
	}
}

type boolCodec struct{}

func (boolCodec) Name() string { return "bool" }

func (boolCodec) Parse(b []byte) (any, error) {
	if b == nil {
		return nil, nil
	}
	switch string(b) {
	case "t", "true", "TRUE", "1":
		return true, nil
	case "f", "false", "FALSE", "0":
		return false, nil
	default:
		return nil, typeErr("bool", string(b), errInvalidBool)
	}
}

func (boolCodec) Format(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	b, ok := v.(bool)
	if !ok {
		return nil, typeErr("bool", v, errWrongGoType)
	}
	if b {
		return []byte("t"), nil
	}
	return []byte("f"), nil
}

// intCodec handles int2/int4/int8, validated against bits-wide range on
// Format per spec.md's "out-of-range values raise a type error on format".
type intCodec struct {
	name string
	bits int
}

func (c intCodec) Name() string { return c.name }

func (c intCodec) Parse(b []byte) (any, error) {
	if b == nil {
		return nil, nil
	}
	n, err := strconv.ParseInt(string(b), 10, c.bits)
	if err != nil {
		return nil, typeErr(c.name, string(b), err)
	}
	return n, nil
}

func (c intCodec) Format(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	n, err := toInt64(v)
	if err != nil {
		return nil, typeErr(c.name, v, err)
	}
	if !fitsBits(n, c.bits) {
		return nil, typeErr(c.name, v, errOutOfRange)
	}
	return []byte(strconv.FormatInt(n, 10)), nil
}

func toInt64(v any) (int64, error) {
	switch t := v.(type) {
	case int:
		return int64(t), nil
	case int8:
		return int64(t), nil
	case int16:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case int64:
		return t, nil
	case uint:
		return int64(t), nil
	case uint32:
		return int64(t), nil
	case uint64:
		return int64(t), nil
	default:
		return 0, errWrongGoType
	}
}

func fitsBits(n int64, bits int) bool {
	switch bits {
	case 16:
		return n >= -1<<15 && n <= 1<<15-1
	case 32:
		return n >= -1<<31 && n <= 1<<31-1
	default:
		return true
	}
}

// floatCodec handles float4/float8.
type floatCodec struct {
	name string
	bits int
}

func (c floatCodec) Name() string { return c.name }

func (c floatCodec) Parse(b []byte) (any, error) {
	if b == nil {
		return nil, nil
	}
	f, err := strconv.ParseFloat(string(b), c.bits)
	if err != nil {
		return nil, typeErr(c.name, string(b), err)
	}
	return f, nil
}

func (c floatCodec) Format(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	var f float64
	switch t := v.(type) {
	case float32:
		f = float64(t)
	case float64:
		f = t
	default:
		return nil, typeErr(c.name, v, errWrongGoType)
	}
	return []byte(strconv.FormatFloat(f, 'g', -1, c.bits)), nil
}

// byteaCodec handles PostgreSQL's "\x"-prefixed hex bytea text format.
type byteaCodec struct{}

func (byteaCodec) Name() string { return "bytea" }

func (byteaCodec) Parse(b []byte) (any, error) {
	if b == nil {
		return nil, nil
	}
	if len(b) < 2 || b[0] != '\\' || b[1] != 'x' {
		return nil, typeErr("bytea", string(b), errInvalidBytea)
	}
	out := make([]byte, hex.DecodedLen(len(b)-2))
	n, err := hex.Decode(out, b[2:])
	if err != nil {
		return nil, typeErr("bytea", string(b), err)
	}
	return out[:n], nil
}

func (byteaCodec) Format(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	raw, ok := v.([]byte)
	if !ok {
		return nil, typeErr("bytea", v, errWrongGoType)
	}
	out := make([]byte, 2+hex.EncodedLen(len(raw)))
	out[0], out[1] = '\\', 'x'
	hex.Encode(out[2:], raw)
	return out, nil
}

// timestamptzCodec parses/formats PostgreSQL's default timestamptz text
// output, e.g. "2024-01-02 15:04:05.123456+00".
type timestamptzCodec struct{}

const pgTimestamptzLayout = "2006-01-02 15:04:05.999999Z07:00"

func (timestamptzCodec) Name() string { return "timestamptz" }

func (timestamptzCodec) Parse(b []byte) (any, error) {
	if b == nil {
		return nil, nil
	}
	s := string(b)
	// Postgres emits a bare "+00" offset; Go's Z07:00 wants "+00:00" or "Z".
	// Normalize a trailing 2- or 3-digit zone with no colon.
	s = normalizeZone(s)
	t, err := time.Parse(pgTimestamptzLayout, s)
	if err != nil {
		return nil, typeErr("timestamptz", string(b), err)
	}
	return t, nil
}

func normalizeZone(s string) string {
	n := len(s)
	if n >= 3 && (s[n-3] == '+' || s[n-3] == '-') {
		return s + ":00"
	}
	if n >= 6 && (s[n-6] == '+' || s[n-6] == '-') && s[n-3] == ':' {
		return s
	}
	return s
}

func (timestamptzCodec) Format(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	t, ok := v.(time.Time)
	if !ok {
		return nil, typeErr("timestamptz", v, errWrongGoType)
	}
	return []byte(t.UTC().Format("2006-01-02 15:04:05.999999Z07:00")), nil
}

// jsonCodec handles json and jsonb: Format marshals any Go value (a
// json.RawMessage is passed through untouched), and Parse returns a
// copy of the column text as a json.RawMessage without decoding it.
type jsonCodec struct{ name string }

func (c jsonCodec) Name() string { return c.name }

func (c jsonCodec) Parse(b []byte) (any, error) {
	if b == nil {
		return nil, nil
	}
	return json.RawMessage(append([]byte(nil), b...)), nil
}

func (c jsonCodec) Format(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return []byte(raw), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, typeErr(c.name, v, err)
	}
	return b, nil
}
