package sqlstore

import (
	"strconv"
	"strings"
)

// Dialect captures the differences between supported SQL databases.
type Dialect struct {
	Name string

	// numbered is true for drivers using $1, $2 bind parameters.
	numbered bool
}

var (
	// SQLite binds parameters with ?.
	SQLite = Dialect{Name: "sqlite"}

	// Postgres binds parameters with $n.
	Postgres = Dialect{Name: "postgres", numbered: true}
)

// rebind rewrites ? placeholders into the dialect's bind syntax.
func (d Dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] != '?' {
			b.WriteByte(query[i])
			continue
		}
		n++
		b.WriteByte('$')
		b.WriteString(strconv.Itoa(n))
	}
	return b.String()
}
