package safety

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheck_AllowsSelect(t *testing.T) {
	assert.NoError(t, Check("SELECT id, name FROM customers WHERE active = true"))
}

func TestCheck_AllowsLowercaseSelect(t *testing.T) {
	assert.NoError(t, Check("  select 1"))
}

func TestCheck_AllowsWithSelect(t *testing.T) {
	sql := `WITH recent AS (SELECT id FROM orders WHERE created_at > now() - interval '1 day')
	        SELECT * FROM recent`
	assert.NoError(t, Check(sql))
}

func TestCheck_RejectsEmpty(t *testing.T) {
	require.ErrorIs(t, Check(""), ErrUnsafeStatement)
	require.ErrorIs(t, Check("   "), ErrUnsafeStatement)
}

func TestCheck_RejectsNonSelectLeadingKeyword(t *testing.T) {
	for _, sql := range []string{
		"INSERT INTO customers (name) VALUES ('x')",
		"UPDATE customers SET active = false",
		"DELETE FROM customers",
		"DROP TABLE customers",
		"ALTER TABLE customers ADD COLUMN x int",
		"TRUNCATE customers",
		"GRANT SELECT ON customers TO public",
		"REVOKE SELECT ON customers FROM public",
		"CREATE TABLE x (id int)",
	} {
		assert.ErrorIsf(t, Check(sql), ErrUnsafeStatement, "expected rejection for %q", sql)
	}
}

func TestCheck_RejectsChainedStatement(t *testing.T) {
	sql := "SELECT * FROM customers; DROP TABLE customers"
	assert.ErrorIs(t, Check(sql), ErrUnsafeStatement)
}

func TestCheck_RejectsWithoutTrailingSelect(t *testing.T) {
	sql := "WITH recent AS (INSERT INTO orders DEFAULT VALUES RETURNING id)"
	assert.ErrorIs(t, Check(sql), ErrUnsafeStatement)
}
