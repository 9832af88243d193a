package schema

import (
	"fmt"
	"strings"

	"github.com/ferneyholguin/sqlitemgmt/internal/sqlbuild"
)

// CreateTableSQL returns the CREATE TABLE IF NOT EXISTS statement for the entity.
func (e *Entity) CreateTableSQL() (string, error) {
	var defs, foreignKeys []string
	for _, c := range e.Columns {
		join := e.JoinFor(c.Name)
		def, err := columnDef(c, join)
		if err != nil {
			return "", err
		}
		defs = append(defs, def)
	}
	for _, j := range e.Joins {
		if e.Column(j.Target) != nil {
			continue
		}
		related, source, err := j.SourceColumn()
		if err != nil {
			return "", fmt.Errorf("%s: %w", e.Table, err)
		}
		def, err := joinColumnDef(j, source)
		if err != nil {
			return "", fmt.Errorf("%s: %w", e.Table, err)
		}
		defs = append(defs, def)
		foreignKeys = append(foreignKeys, fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s (%s)",
			sqlbuild.Quote(j.Target), sqlbuild.Quote(related.Table), sqlbuild.Quote(source.Name)))
	}
	defs = append(defs, foreignKeys...)
	return "CREATE TABLE IF NOT EXISTS " + sqlbuild.Quote(e.Table) + " (\n" +
		strings.Join(defs, ",\n") + "\n)", nil
}

func columnDef(c *Column, join *Join) (string, error) {
	var sb strings.Builder
	sb.WriteString(sqlbuild.Quote(c.Name))
	sb.WriteString(" ")
	sb.WriteString(c.SQLType)
	if c.NotNull || (join != nil && !join.Nullable && !c.PrimaryKey) {
		sb.WriteString(" NOT NULL")
	}
	if c.PrimaryKey {
		sb.WriteString(" PRIMARY KEY")
		if c.AutoIncrement {
			sb.WriteString(" AUTOINCREMENT")
		}
	} else if c.Unique || (join != nil && join.Unique) {
		sb.WriteString(" UNIQUE")
	}
	switch {
	case c.HasDefault:
		v, err := FormatDefault(c.Type, c.Default)
		if err != nil {
			return "", fmt.Errorf("column %q: %w", c.Name, err)
		}
		sb.WriteString(" DEFAULT ")
		sb.WriteString(v)
	case join != nil && join.HasDefault:
		v, err := FormatDefault(c.Type, join.Default)
		if err != nil {
			return "", fmt.Errorf("join %s: %w", join.Field, err)
		}
		sb.WriteString(" DEFAULT ")
		sb.WriteString(v)
	}
	return sb.String(), nil
}

func joinColumnDef(j *Join, source *Column) (string, error) {
	var sb strings.Builder
	sb.WriteString(sqlbuild.Quote(j.Target))
	sb.WriteString(" ")
	sb.WriteString(source.SQLType)
	if !j.Nullable {
		sb.WriteString(" NOT NULL")
	}
	if j.Unique {
		sb.WriteString(" UNIQUE")
	}
	if j.HasDefault {
		v, err := FormatDefault(source.Type, j.Default)
		if err != nil {
			return "", fmt.Errorf("join %s: %w", j.Field, err)
		}
		sb.WriteString(" DEFAULT ")
		sb.WriteString(v)
	}
	return sb.String(), nil
}
