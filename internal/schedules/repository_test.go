package schedules

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestMapUniqueViolation(t *testing.T) {
	other := errors.New("connection reset")
	cases := []struct {
		name string
		in   error
		want error
	}{
		{"draft month", &pgconn.PgError{Code: "23505", ConstraintName: "ux_schedules_draft_month"}, ErrDraftExists},
		{"employee twice on a date", &pgconn.PgError{Code: "23505", ConstraintName: "ux_assignments_schedule_date_employee"}, ErrAssignmentConflict},
		{"position twice on a date", &pgconn.PgError{Code: "23505", ConstraintName: "ux_assignments_schedule_date_position"}, ErrAssignmentConflict},
		{"wrapped violation", fmt.Errorf("commit: %w", &pgconn.PgError{Code: "23505", ConstraintName: "ux_schedules_draft_month"}), ErrDraftExists},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.True(t, errors.Is(mapUniqueViolation(tc.in), tc.want))
		})
	}

	assert.NoError(t, mapUniqueViolation(nil))
	assert.Same(t, other, mapUniqueViolation(other))

	unknown := &pgconn.PgError{Code: "23505", ConstraintName: "employees_pkey"}
	err := mapUniqueViolation(unknown)
	assert.False(t, errors.Is(err, ErrDraftExists))
	assert.False(t, errors.Is(err, ErrAssignmentConflict))

	fk := &pgconn.PgError{Code: "23503", ConstraintName: "ux_schedules_draft_month"}
	assert.False(t, errors.Is(mapUniqueViolation(fk), ErrDraftExists), "only unique violations are mapped")
}
