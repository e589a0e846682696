package database

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsLockContention(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error", nil, false},
		{"unrelated error", errors.New("boom"), false},
		{"lock_not_available", &pgconn.PgError{Code: "55P03"}, true},
		{"serialization_failure", &pgconn.PgError{Code: "40001"}, true},
		{"unique_violation", &pgconn.PgError{Code: "23505"}, false},
		{"wrapped lock error", wrapErr(&pgconn.PgError{Code: "55P03"}), true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsLockContention(tc.err))
		})
	}
}

func wrapErr(err error) error {
	return errors.Join(errors.New("context"), err)
}
