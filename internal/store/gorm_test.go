package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
)

func TestMapLockError(t *testing.T) {
	deadlock := &mysql.MySQLError{Number: mysqlErrDeadlock, Message: "Deadlock found"}
	assert.ErrorIs(t, mapLockError(deadlock), ErrConflict)
	assert.ErrorIs(t, mapLockError(fmt.Errorf("tx: %w", &mysql.MySQLError{Number: mysqlErrLockWaitTimeout})), ErrConflict)

	dup := &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}
	assert.Same(t, error(dup), mapLockError(dup))

	other := errors.New("connection refused")
	assert.Equal(t, other, mapLockError(other))
	assert.NoError(t, mapLockError(nil))
}

func TestUserPatchColumns(t *testing.T) {
	assert.True(t, UserPatch{}.empty())

	lat := 1.5
	cols := UserPatch{InCall: Bool(false), Lat: NullFloat{Value: &lat, Set: true}, Lng: NullFloat{Set: true}}.columns()
	assert.Equal(t, false, cols["in_call"])
	assert.Equal(t, &lat, cols["lat"])
	assert.Contains(t, cols, "lng")
	assert.Nil(t, cols["lng"])
	assert.NotContains(t, cols, "is_online")
}
