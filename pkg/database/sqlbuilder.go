package database

import (
	"fmt"
	"strings"

	"github.com/huandu/go-sqlbuilder"
)

// Excluded references the row proposed for insertion in an ON CONFLICT clause.
func Excluded(column string) any {
	return sqlbuilder.Raw(fmt.Sprintf("EXCLUDED.%s", column))
}

// InsertBuilder is a PostgreSQL insert builder with conflict clauses.
type InsertBuilder struct {
	*sqlbuilder.InsertBuilder
}

func NewInsertBuilder() *InsertBuilder {
	return &InsertBuilder{sqlbuilder.PostgreSQL.NewInsertBuilder()}
}

// OnConflict appends ON CONFLICT (...) DO UPDATE and returns the builder for the SET part.
func (b *InsertBuilder) OnConflict(columns ...string) *sqlbuilder.UpdateBuilder {
	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	b.SQL(fmt.Sprintf("ON CONFLICT (%s) DO UPDATE %s", strings.Join(columns, ", "), b.Var(ub)))
	return ub
}

// OnConflictDoNothing appends ON CONFLICT (...) DO NOTHING. With no columns
// any constraint violation is ignored.
func (b *InsertBuilder) OnConflictDoNothing(columns ...string) *InsertBuilder {
	if len(columns) == 0 {
		b.SQL("ON CONFLICT DO NOTHING")
		return b
	}
	b.SQL(fmt.Sprintf("ON CONFLICT (%s) DO NOTHING", strings.Join(columns, ", ")))
	return b
}

// Returning appends RETURNING cols.
func (b *InsertBuilder) Returning(cols ...string) *InsertBuilder {
	b.InsertBuilder.Returning(cols...)
	return b
}

// NewSelectBuilder returns a PostgreSQL select builder.
func NewSelectBuilder() *sqlbuilder.SelectBuilder {
	return sqlbuilder.PostgreSQL.NewSelectBuilder()
}

// NewUpdateBuilder returns a PostgreSQL update builder.
func NewUpdateBuilder() *sqlbuilder.UpdateBuilder {
	return sqlbuilder.PostgreSQL.NewUpdateBuilder()
}

// ForUpdate appends a row lock to a select.
func ForUpdate(sb *sqlbuilder.SelectBuilder) *sqlbuilder.SelectBuilder {
	sb.SQL("FOR UPDATE")
	return sb
}
