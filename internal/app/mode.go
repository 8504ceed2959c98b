package app

import (
	"errors"
	"fmt"
	"strings"
)

// Mode is a destination store selectable with -db.
type Mode string

const (
	MySQL    Mode = "mysql"
	MongoDB  Mode = "mongodb"
	Postgres Mode = "postgres"
	MSSQL    Mode = "mssql"
	SQLite   Mode = "sqlite"
)

var modes = []Mode{MySQL, MongoDB, Postgres, MSSQL, SQLite}

// ErrUnknownMode is returned by ParseMode for an absent or unrecognized value.
var ErrUnknownMode = errors.New("unknown database mode")

// Modes returns every accepted mode in display order.
func Modes() []Mode {
	out := make([]Mode, len(modes))
	copy(out, modes)
	return out
}

// ParseMode maps a -db value onto a Mode. Matching ignores case and
// surrounding blanks.
func ParseMode(s string) (Mode, error) {
	v := Mode(strings.ToLower(strings.TrimSpace(s)))
	for _, m := range modes {
		if v == m {
			return m, nil
		}
	}
	if v == "" {
		return "", fmt.Errorf("%w: -db is required (one of %s)", ErrUnknownMode, modeList())
	}
	return "", fmt.Errorf("%w: %q (one of %s)", ErrUnknownMode, s, modeList())
}

// Relational reports whether m replaces tables from the previous snapshot.
// The document mode appends the current snapshot instead.
func (m Mode) Relational() bool {
	return m != MongoDB
}

func (m Mode) String() string { return string(m) }

func modeList() string {
	names := make([]string, len(modes))
	for i, m := range modes {
		names[i] = string(m)
	}
	return strings.Join(names, ", ")
}
