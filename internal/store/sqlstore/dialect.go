package sqlstore

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

// Dialect captures what differs between the supported SQL databases.
type Dialect struct {
	// Name is the value of SELECTORD_STORE_DRIVER selecting this dialect.
	Name string
	// DriverName is the database/sql driver registered for it.
	DriverName string

	numbered  bool   // $1, $2 placeholders instead of ?
	forUpdate bool   // supports SELECT ... FOR UPDATE
	contains  string // substring predicate on name, one placeholder
}

var (
	SQLite = Dialect{
		Name:       "sqlite",
		DriverName: "sqlite",
		contains:   "instr(name, ?) > 0",
	}
	Postgres = Dialect{
		Name:       "postgres",
		DriverName: "postgres",
		numbered:   true,
		forUpdate:  true,
		contains:   "strpos(name, ?) > 0",
	}
	// MySQL matches names with the column collation, which is case
	// insensitive by default.
	MySQL = Dialect{
		Name:       "mysql",
		DriverName: "mysql",
		forUpdate:  true,
		contains:   "INSTR(name, ?) > 0",
	}
)

// DialectFor returns the dialect registered under name.
func DialectFor(name string) (Dialect, error) {
	switch name {
	case SQLite.Name:
		return SQLite, nil
	case Postgres.Name:
		return Postgres, nil
	case MySQL.Name:
		return MySQL, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported sql dialect %q", name)
	}
}

// Rebind rewrites ? placeholders into the dialect's native form.
func (d Dialect) Rebind(query string) string {
	if !d.numbered {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// placeholders returns "?, ?, ..." with n entries.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// isDuplicate reports whether err is a primary key or unique index violation.
func isDuplicate(err error) bool {
	if err == nil {
		return false
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}

	// modernc.org/sqlite reports constraint failures through its message.
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "PRIMARY KEY constraint failed")
}
