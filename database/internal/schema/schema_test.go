package schema_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sagarc03/sigv4gate/database/internal/schema"
)

var testTypes = map[string]string{"id": "uuid", "text": "text", "time": "timestamptz"}

func keysColumns(t *testing.T) map[string]schema.Column {
	t.Helper()

	cols := make(map[string]schema.Column)
	for _, c := range schema.KeysTable("keys", testTypes).Columns {
		cols[c.Name] = c
	}
	return cols
}

func TestTable_Check(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		mutate   func(map[string]schema.Column)
		wantErr  string
		missing  []string
		mismatch []string
	}{
		{name: "matching", mutate: func(map[string]schema.Column) {}},
		{
			name: "extra column allowed",
			mutate: func(c map[string]schema.Column) {
				c["comment"] = schema.Column{Name: "comment", Type: "text", Nullable: true}
			},
		},
		{
			name:   "catalog type case ignored",
			mutate: func(c map[string]schema.Column) { c["access_key"] = schema.Column{Name: "access_key", Type: "TEXT"} },
		},
		{
			name:    "missing table",
			mutate:  func(c map[string]schema.Column) { clear(c) },
			wantErr: "table keys does not exist",
		},
		{
			name: "missing columns in declaration order",
			mutate: func(c map[string]schema.Column) {
				delete(c, "namespace")
				delete(c, "secret_key")
			},
			missing: []string{"secret_key", "namespace"},
		},
		{
			name: "type and nullability",
			mutate: func(c map[string]schema.Column) {
				c["access_key"] = schema.Column{Name: "access_key", Type: "integer"}
				c["disabled_at"] = schema.Column{Name: "disabled_at", Type: "timestamptz"}
			},
			mismatch: []string{
				"access_key: expected text, got integer",
				"disabled_at: expected nullable=true, got nullable=false",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cols := keysColumns(t)
			tt.mutate(cols)

			err := schema.KeysTable("keys", testTypes).Check(cols)
			switch {
			case tt.wantErr != "":
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			case tt.missing != nil || tt.mismatch != nil:
				var mismatch *schema.MismatchError
				require.ErrorAs(t, err, &mismatch)
				assert.Equal(t, "keys", mismatch.Table)
				assert.Equal(t, tt.missing, mismatch.Missing)
				assert.Equal(t, tt.mismatch, mismatch.Mismatched)
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func TestMismatchError_Error(t *testing.T) {
	t.Parallel()

	err := &schema.MismatchError{
		Table:      "keys",
		Missing:    []string{"id", "name"},
		Mismatched: []string{"access_key: expected text, got integer"},
	}
	assert.Equal(t, "table keys schema validation failed:\n"+
		"  missing columns: id, name\n"+
		"  mismatched columns:\n"+
		"    - access_key: expected text, got integer\n", err.Error())
}
