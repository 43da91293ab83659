package store

import (
	"context"
	"database/sql/driver"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"record not found", gorm.ErrRecordNotFound, ErrNotFound},
		{"wrapped not found", errors.Wrap(gorm.ErrRecordNotFound, "lookup"), ErrNotFound},
		{"deadline", context.DeadlineExceeded, ErrTimeout},
		{"gorm duplicate", gorm.ErrDuplicatedKey, ErrDuplicate},
		{"postgres unique", &pgconn.PgError{Code: "23505"}, ErrDuplicate},
		{"sqlite unique", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}, ErrDuplicate},
		{"postgres connection failure", &pgconn.PgError{Code: "08006"}, ErrUnavailable},
		{"postgres too many connections", &pgconn.PgError{Code: "53300"}, ErrUnavailable},
		{"bad conn", driver.ErrBadConn, ErrUnavailable},
		{"canceled", context.Canceled, ErrUnavailable},
		{"sqlite busy", sqlite3.Error{Code: sqlite3.ErrBusy}, ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err)
			assert.True(t, errors.Is(got, tt.want), "classify(%v) = %v", tt.err, got)
			assert.True(t, errors.Is(got, tt.err), "cause must stay reachable")
		})
	}
}

func TestClassifyPassesThrough(t *testing.T) {
	assert.NoError(t, classify(nil))

	plain := errors.New("syntax error at or near SELECT")
	got := classify(plain)
	assert.Equal(t, plain, got)
	for _, sentinel := range []error{ErrNotFound, ErrDuplicate, ErrUnavailable, ErrTimeout} {
		assert.False(t, errors.Is(got, sentinel))
	}
}

func TestClassifyIsIdempotent(t *testing.T) {
	once := classify(gorm.ErrRecordNotFound)
	twice := classify(once)
	assert.Same(t, once, twice)
}
