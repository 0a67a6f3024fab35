package consistency

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constant(v float64) func(context.Context) (float64, error) {
	return func(context.Context) (float64, error) { return v, nil }
}

func TestThresholdOperators(t *testing.T) {
	cases := []struct {
		op    string
		value float64
		want  bool
	}{
		{">", 2, true},
		{"<", 2, false},
		{">=", 1, true},
		{"<=", 1, true},
		{"==", 1, true},
		{"==", 0, false},
		{"~", 1, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Threshold{Operator: c.op, Value: 1}.Holds(c.value), "%g %s 1", c.value, c.op)
	}
}

func TestRunReportsFailuresAndAdvisories(t *testing.T) {
	report := NewRunner().Run(context.Background(), []Check{
		{Name: "ok", Query: constant(0), Threshold: Threshold{"==", 0}},
		{Name: "drift", Query: constant(3), Threshold: Threshold{"==", 0}, Advisory: true},
	})
	require.Len(t, report.Results, 2)
	assert.True(t, report.Results[0].Passed)
	assert.False(t, report.Results[1].Passed)
	assert.True(t, report.Healthy(), "advisory failures keep the report healthy")

	report = NewRunner().Run(context.Background(), []Check{
		{Name: "broken", Query: func(context.Context) (float64, error) { return 0, errors.New("db down") }, Threshold: Threshold{"==", 0}},
	})
	assert.False(t, report.Healthy())
	assert.Equal(t, "db down", report.Results[0].Error)

	var out bytes.Buffer
	report.WriteText(&out)
	assert.Contains(t, out.String(), "FAIL")
	assert.Contains(t, out.String(), "db down")
}

func TestLedgerChecksQueryStore(t *testing.T) {
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer raw.Close()
	db := sqlx.NewDb(raw, "postgres")

	checks := LedgerChecks(db)
	require.Len(t, checks, 4)

	mock.ExpectQuery("GROUP BY user_id, game_id").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	v, err := checks[0].Query(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2.0, v)
	assert.False(t, checks[0].Threshold.Holds(v))
	require.NoError(t, mock.ExpectationsWereMet())
}
