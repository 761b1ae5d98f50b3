// Package querysql compiles fact selectors to parameterized SQLite queries.
//
// Scalars are stored as their canonical JSON text, so equality on the text
// column is equality of scalars, kind included: 1 and 1.0 never match.
package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/deduce/internal/ir"
)

// Column names of the facts table.
const (
	ColumnAttribute = "attribute"
	ColumnEntity    = "entity"
	ColumnValue     = "value"
	ColumnCause     = "cause"
)

// SQLCompiler compiles selectors to SQL over a facts table.
//
// Every query orders by entity, attribute, value so that results are
// deterministic. Values are always parameterized, never interpolated.
type SQLCompiler struct {
	// Table is the facts table name.
	Table string
}

// NewSQLCompiler creates a compiler for the "facts" table.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{Table: "facts"}
}

// Compile converts a selector to a SELECT returning attribute, entity,
// value and cause columns. Unset selector fields are left out of the WHERE
// clause. Returns (sql, params, error).
func (c *SQLCompiler) Compile(sel ir.Selector) (string, []any, error) {
	var (
		where  []string
		params []any
	)
	for _, field := range []struct {
		column string
		value  ir.Scalar
	}{
		{ColumnEntity, sel.Of},
		{ColumnAttribute, sel.The},
		{ColumnValue, sel.Is},
	} {
		if field.value == nil {
			continue
		}
		param, err := Param(field.value)
		if err != nil {
			return "", nil, fmt.Errorf("compile %s: %w", field.column, err)
		}
		where = append(where, field.column+" = ?")
		params = append(params, param)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s, %s, %s, %s FROM %s",
		ColumnAttribute, ColumnEntity, ColumnValue, ColumnCause, c.Table)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" " + c.orderBy())
	return b.String(), params, nil
}

// orderBy returns the ORDER BY clause shared by every query.
// COLLATE BINARY keeps text ordering stable across SQLite versions.
func (c *SQLCompiler) orderBy() string {
	return fmt.Sprintf("ORDER BY %s ASC COLLATE BINARY, %s ASC COLLATE BINARY, %s ASC COLLATE BINARY",
		ColumnEntity, ColumnAttribute, ColumnValue)
}

// Param converts a scalar to the SQL parameter stored for it.
func Param(s ir.Scalar) (string, error) {
	data, err := ir.MarshalCanonical(s)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
