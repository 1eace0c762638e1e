// Package schema compares a table's catalog columns against the shape a
// backend's queries rely on.
package schema

import (
	"fmt"
	"strings"
)

// Column is one column as the catalog reports it. Type is compared lower
// cased.
type Column struct {
	Name     string
	Type     string
	Nullable bool
}

// Table is the expected shape of a table. Columns are checked in order, so
// reports list problems in declaration order.
type Table struct {
	Name    string
	Columns []Column
}

// MismatchError lists every way a table differs from its expected shape.
type MismatchError struct {
	Table      string
	Missing    []string
	Mismatched []string
}

func (e *MismatchError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "table %s schema validation failed:\n", e.Table)
	if len(e.Missing) > 0 {
		fmt.Fprintf(&sb, "  missing columns: %s\n", strings.Join(e.Missing, ", "))
	}
	if len(e.Mismatched) > 0 {
		sb.WriteString("  mismatched columns:\n")
		for _, m := range e.Mismatched {
			fmt.Fprintf(&sb, "    - %s\n", m)
		}
	}
	return sb.String()
}

// Check validates actual, the catalog columns keyed by name. An empty actual
// means the table does not exist. Extra columns are allowed.
func (t Table) Check(actual map[string]Column) error {
	if len(actual) == 0 {
		return fmt.Errorf("validate table schema: table %s does not exist", t.Name)
	}

	mismatch := &MismatchError{Table: t.Name}
	for _, want := range t.Columns {
		got, ok := actual[want.Name]
		if !ok {
			mismatch.Missing = append(mismatch.Missing, want.Name)
			continue
		}
		if gotType := strings.ToLower(got.Type); gotType != want.Type {
			mismatch.Mismatched = append(mismatch.Mismatched,
				fmt.Sprintf("%s: expected %s, got %s", want.Name, want.Type, gotType))
		}
		if got.Nullable != want.Nullable {
			mismatch.Mismatched = append(mismatch.Mismatched,
				fmt.Sprintf("%s: expected nullable=%v, got nullable=%v", want.Name, want.Nullable, got.Nullable))
		}
	}

	if len(mismatch.Missing) > 0 || len(mismatch.Mismatched) > 0 {
		return mismatch
	}
	return nil
}

// KeysTable is the keys table layout shared by every backend. types maps the
// logical kinds "id", "text" and "time" to the backend's catalog type names.
func KeysTable(name string, types map[string]string) Table {
	col := func(name, kind string, nullable bool) Column {
		return Column{Name: name, Type: types[kind], Nullable: nullable}
	}
	return Table{
		Name: name,
		Columns: []Column{
			col("id", "id", false),
			col("access_key", "text", false),
			col("secret_key", "text", false),
			col("principal_type", "text", false),
			col("principal_partition", "text", false),
			col("account_id", "text", false),
			col("principal_path", "text", false),
			col("name", "text", false),
			col("namespace", "text", false),
			col("created_at", "time", false),
			col("updated_at", "time", false),
			col("disabled_at", "time", true),
		},
	}
}
