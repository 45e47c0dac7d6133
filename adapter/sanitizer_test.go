package adapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdata-io/gateway/errs"
)

func TestSanitizeSQL_AllowsSelect(t *testing.T) {
	out, err := SanitizeSQL("SELECT * FROM users WHERE id = 1;")
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM users WHERE id = 1", out)
}

func TestSanitizeSQL_AllowsWithSelect(t *testing.T) {
	out, err := SanitizeSQL("WITH recent AS (SELECT 1) SELECT * FROM recent")
	require.NoError(t, err)
	assert.Contains(t, out, "WITH recent")
}

func TestSanitizeSQL_RejectsEmpty(t *testing.T) {
	_, err := SanitizeSQL("   ")
	require.Error(t, err)
	assertQueryInvalid(t, err)
}

func TestSanitizeSQL_RejectsMultipleStatements(t *testing.T) {
	_, err := SanitizeSQL("SELECT 1; SELECT 2;")
	require.Error(t, err)
	assertQueryInvalid(t, err)
}

func TestSanitizeSQL_AllowsSemicolonInsideStringLiteral(t *testing.T) {
	out, err := SanitizeSQL("SELECT * FROM users WHERE name = 'a;b'")
	require.NoError(t, err)
	assert.Contains(t, out, "a;b")
}

func TestSanitizeSQL_RejectsNonSelect(t *testing.T) {
	_, err := SanitizeSQL("UPDATE users SET name = 'x'")
	require.Error(t, err)
	assertQueryInvalid(t, err)
}

func TestSanitizeSQL_RejectsForbiddenKeywordInsideSelect(t *testing.T) {
	_, err := SanitizeSQL("SELECT * FROM pg_catalog.pg_tables")
	require.Error(t, err)
	assertQueryInvalid(t, err)
}

func TestSanitizeSQL_AllowsInformationSchema(t *testing.T) {
	_, err := SanitizeSQL("SELECT * FROM information_schema.tables")
	require.NoError(t, err)
}

func assertQueryInvalid(t *testing.T, err error) {
	t.Helper()
	var gerr *errs.Error
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, errs.QueryInvalid, gerr.Kind)
}
