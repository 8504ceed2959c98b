package dataset

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// NullMarker is the IMDb dataset convention for a missing value.
const NullMarker = `\N`

// ReadOptions controls how a delimited dataset file is parsed.
type ReadOptions struct {
	// Comma is the field delimiter. Zero means tab.
	Comma rune

	// Encoding is an IANA/WHATWG encoding label ("windows-1250", "latin1").
	// Empty or any UTF-8 label reads the input as is.
	Encoding string

	// NullMarkers are cell values read as nil in addition to the empty string.
	// Nil means {NullMarker}.
	NullMarkers []string

	// TextColumns are never type-coerced, e.g. identifiers with leading zeros.
	TextColumns []string
}

func (o ReadOptions) comma() rune {
	if o.Comma == 0 {
		return '\t'
	}
	return o.Comma
}

func (o ReadOptions) nullSet() map[string]struct{} {
	markers := o.NullMarkers
	if markers == nil {
		markers = []string{NullMarker}
	}
	set := make(map[string]struct{}, len(markers)+1)
	set[""] = struct{}{}
	for _, m := range markers {
		set[m] = struct{}{}
	}
	return set
}

// decodeReader wraps r with a decoder for the configured encoding.
func decodeReader(r io.Reader, label string) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "", "utf-8", "utf8":
		return r, nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding %q: %w", label, err)
	}
	return transform.NewReader(r, enc.NewDecoder()), nil
}

// maxLineBytes bounds one line of a tab-separated file.
const maxLineBytes = 16 << 20

// recordReader returns a function yielding one record per call and io.EOF at
// the end. Tab-separated files are IMDb style: no quoting, so a field may
// start with a literal '"'. Other delimiters get CSV quoting rules.
func recordReader(r io.Reader, comma rune) func() ([]string, error) {
	if comma == '\t' {
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
		return func() ([]string, error) {
			for sc.Scan() {
				text := strings.TrimSuffix(sc.Text(), "\r")
				if text == "" {
					continue
				}
				return strings.Split(text, "\t"), nil
			}
			if err := sc.Err(); err != nil {
				return nil, err
			}
			return nil, io.EOF
		}
	}

	cr := csv.NewReader(r)
	cr.Comma = comma
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true
	return cr.Read
}

// ReadTable parses a delimited file with a header row into a Table named
// name. Header names are trimmed and a leading BOM is dropped; cells are
// trimmed and null markers become nil. Type coercion is left to Coerce.
func ReadTable(ctx context.Context, name string, src io.Reader, opt ReadOptions) (Table, error) {
	if err := ctx.Err(); err != nil {
		return Table{}, err
	}

	r, err := decodeReader(src, opt.Encoding)
	if err != nil {
		return Table{}, err
	}

	next := recordReader(r, opt.comma())

	var line int
	readRec := func() ([]string, error) {
		line++
		return next()
	}

	hdr, err := readRec()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Table{}, fmt.Errorf("read header: empty input")
		}
		return Table{}, fmt.Errorf("read header: %w", err)
	}

	t := Table{Name: name, Columns: make([]string, len(hdr))}
	for i, h := range hdr {
		if i == 0 {
			h = strings.TrimPrefix(h, "\uFEFF")
		}
		t.Columns[i] = strings.TrimSpace(h)
	}

	nulls := opt.nullSet()
	for {
		if line%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return Table{}, err
			}
		}

		rec, err := readRec()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Table{}, fmt.Errorf("line %d: %w", line, err)
		}
		if len(rec) != len(t.Columns) {
			return Table{}, fmt.Errorf("line %d: %d fields, header has %d", line, len(rec), len(t.Columns))
		}

		row := make([]any, len(rec))
		for i, v := range rec {
			v = strings.TrimSpace(v)
			if _, isNull := nulls[v]; isNull {
				continue
			}
			row[i] = v
		}
		t.Rows = append(t.Rows, row)
	}

	if err := t.Validate(); err != nil {
		return Table{}, err
	}
	return t, nil
}
