package store

import (
	"database/sql"

	"github.com/labflowhq/labflow/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Argument helpers: pointer fields map to NULL columns.

func stringArg(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func testTypeArg(t *models.TestType) interface{} {
	if t == nil {
		return nil
	}
	return string(*t)
}

func boolArg(b *bool) interface{} {
	if b == nil {
		return nil
	}
	return *b
}

// Scan helpers: NULL columns map back to pointer fields.

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullTestType(v sql.NullString) *models.TestType {
	if !v.Valid {
		return nil
	}
	t := models.TestType(v.String)
	return &t
}

func nullBool(v sql.NullBool) *bool {
	if !v.Valid {
		return nil
	}
	b := v.Bool
	return &b
}
