package dataset

import (
	"strconv"
	"strings"
)

type columnKind int

const (
	kindNull columnKind = iota
	kindInt
	kindFloat
	kindBool
	kindString
)

// Coerce returns a copy of t where every string column whose non-null cells
// all parse as integers becomes int64, as numbers becomes float64, and as
// true/false becomes bool. Other columns, and the columns named in keep, are
// left as strings ("007" stays "007").
func Coerce(t Table, keep ...string) Table {
	text := make(map[string]struct{}, len(keep))
	for _, k := range keep {
		text[k] = struct{}{}
	}

	kinds := make([]columnKind, len(t.Columns))
	for c, name := range t.Columns {
		if _, ok := text[name]; ok {
			kinds[c] = kindString
			continue
		}
		kinds[c] = detectKind(t.Rows, c)
	}

	out := Table{
		Name:    t.Name,
		Columns: append([]string(nil), t.Columns...),
		Rows:    make([][]any, len(t.Rows)),
	}
	for i, r := range t.Rows {
		nr := make([]any, len(r))
		for c, v := range r {
			nr[c] = convert(v, kinds[c])
		}
		out.Rows[i] = nr
	}
	return out
}

func detectKind(rows [][]any, col int) columnKind {
	kind := kindNull
	for _, r := range rows {
		s, ok := r[col].(string)
		if !ok {
			if r[col] == nil {
				continue
			}
			return kindString
		}
		k := kindOf(s)
		switch {
		case kind == kindNull:
			kind = k
		case kind == k:
		case (kind == kindInt && k == kindFloat) || (kind == kindFloat && k == kindInt):
			kind = kindFloat
		default:
			return kindString
		}
		if kind == kindString {
			return kindString
		}
	}
	return kind
}

func kindOf(s string) columnKind {
	if _, err := strconv.ParseInt(s, 10, 64); err == nil {
		return kindInt
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil && !strings.ContainsAny(s, "xXpP_") && !isNonFinite(s) {
		return kindFloat
	}
	if strings.EqualFold(s, "true") || strings.EqualFold(s, "false") {
		return kindBool
	}
	return kindString
}

// isNonFinite rejects words strconv accepts as floats ("inf", "nan").
func isNonFinite(s string) bool {
	l := strings.ToLower(strings.TrimLeft(s, "+-"))
	return l == "inf" || l == "infinity" || l == "nan"
}

func convert(v any, kind columnKind) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	switch kind {
	case kindInt:
		n, _ := strconv.ParseInt(s, 10, 64)
		return n
	case kindFloat:
		f, _ := strconv.ParseFloat(s, 64)
		return f
	case kindBool:
		return strings.EqualFold(s, "true")
	default:
		return s
	}
}
