package db

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"tuition/internal/types"
)

func TestEnsureSchema_AppliesEveryStatement(t *testing.T) {
	db := new(mockDBTX)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("CREATE TABLE"), nil)

	require.NoError(t, EnsureSchema(ctx, db))
	db.AssertNumberOfCalls(t, "Exec", len(schemaStatements))
}

func TestEnsureSchema_PaymentsCarryDuplicateGuard(t *testing.T) {
	var payments string
	for _, stmt := range schemaStatements {
		if strings.Contains(stmt, "CREATE TABLE IF NOT EXISTS payments") {
			payments = stmt
		}
	}
	require.NotEmpty(t, payments)
	assert.Contains(t, payments, "UNIQUE (student_id, period_label)")
}

func TestEnsureSchema_StopsAtFirstFailure(t *testing.T) {
	db := new(mockDBTX)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("CREATE TABLE"), nil).Once()
	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("permission denied")).Once()

	err := EnsureSchema(ctx, db)
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeInternalDB, types.CodeOf(err))
	assert.Contains(t, err.Error(), "statement 2")
	db.AssertNumberOfCalls(t, "Exec", 2)
}
