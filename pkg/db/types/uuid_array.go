package dbtypes

import (
	"database/sql/driver"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// UUIDArray is a set of ids persisted as a Postgres array literal
// ({id,id}). Sqlite stores the same literal in a text column.
type UUIDArray []uuid.UUID

// Value writes the ids sorted with duplicates removed.
func (a UUIDArray) Value() (driver.Value, error) {
	ids := a.normalized()
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return "{" + strings.Join(parts, ",") + "}", nil
}

func (a *UUIDArray) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*a = UUIDArray{}
		return nil
	case string:
		return a.parse(v)
	case []byte:
		return a.parse(string(v))
	default:
		return fmt.Errorf("dbtypes: cannot scan %T into UUIDArray", src)
	}
}

func (a UUIDArray) Contains(id uuid.UUID) bool {
	return slices.Contains(a, id)
}

// Allows treats an empty set as unrestricted.
func (a UUIDArray) Allows(id uuid.UUID) bool {
	return len(a) == 0 || a.Contains(id)
}

func (a UUIDArray) normalized() []uuid.UUID {
	out := slices.Clone(a)
	slices.SortFunc(out, func(x, y uuid.UUID) int { return strings.Compare(x.String(), y.String()) })
	return slices.Compact(out)
}

func (a *UUIDArray) parse(literal string) error {
	body := strings.TrimSpace(literal)
	body = strings.TrimSuffix(strings.TrimPrefix(body, "{"), "}")

	out := UUIDArray{}
	for _, raw := range strings.Split(body, ",") {
		raw = strings.Trim(strings.TrimSpace(raw), `"`)
		if raw == "" {
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return fmt.Errorf("dbtypes: parse uuid %q: %w", raw, err)
		}
		out = append(out, id)
	}
	*a = out
	return nil
}
