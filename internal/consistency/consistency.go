// Package consistency evaluates invariants across the catalog, the ownership
// ledger and the search mirror. Each check is a measured value compared
// against a threshold; a healthy deployment passes every check.
package consistency

import (
	"context"
	"fmt"
	"io"
	"math"
	"time"

	"gamelibrary/internal/catalog"

	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Threshold is the condition a measured value must satisfy.
type Threshold struct {
	Operator string // >, <, >=, <=, ==
	Value    float64
}

func (t Threshold) Holds(value float64) bool {
	switch t.Operator {
	case ">":
		return value > t.Value
	case "<":
		return value < t.Value
	case ">=":
		return value >= t.Value
	case "<=":
		return value <= t.Value
	case "==":
		return value == t.Value
	default:
		return false
	}
}

// Check measures one invariant.
type Check struct {
	Name        string
	Description string
	Query       func(context.Context) (float64, error)
	Threshold   Threshold
	// Advisory checks are reported but do not fail the run.
	Advisory bool
}

// Result is the outcome of one check.
type Result struct {
	Name      string        `json:"name"`
	Value     float64       `json:"value"`
	Expected  string        `json:"expected"`
	Passed    bool          `json:"passed"`
	Advisory  bool          `json:"advisory,omitempty"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
	CheckedAt time.Time     `json:"checked_at"`
}

// Report collects the results of a run.
type Report struct {
	Results []Result `json:"results"`
}

// Healthy reports whether every non-advisory check passed.
func (r Report) Healthy() bool {
	for _, res := range r.Results {
		if !res.Passed && !res.Advisory {
			return false
		}
	}
	return true
}

// WriteText prints one line per check.
func (r Report) WriteText(w io.Writer) {
	for _, res := range r.Results {
		status := "PASS"
		switch {
		case res.Passed:
		case res.Advisory:
			status = "WARN"
		default:
			status = "FAIL"
		}
		if res.Error != "" {
			fmt.Fprintf(w, "%s  %-28s error: %s\n", status, res.Name, res.Error)
			continue
		}
		fmt.Fprintf(w, "%s  %-28s value %.2f, expected %s\n", status, res.Name, res.Value, res.Expected)
	}
}

// Runner executes checks in order.
type Runner struct {
	tracer trace.Tracer
	now    func() time.Time
}

func NewRunner() *Runner {
	return &Runner{tracer: otel.Tracer("gamelibrary/consistency"), now: time.Now}
}

func (r *Runner) Run(ctx context.Context, checks []Check) Report {
	ctx, span := r.tracer.Start(ctx, "consistency.run",
		trace.WithAttributes(attribute.Int("checks", len(checks))))
	defer span.End()

	report := Report{Results: make([]Result, 0, len(checks))}
	for _, c := range checks {
		start := r.now()
		value, err := c.Query(ctx)
		res := Result{
			Name:      c.Name,
			Value:     value,
			Expected:  fmt.Sprintf("%s %g", c.Threshold.Operator, c.Threshold.Value),
			Advisory:  c.Advisory,
			Duration:  r.now().Sub(start),
			CheckedAt: start.UTC(),
		}
		if err != nil {
			res.Error = err.Error()
			span.RecordError(err)
		} else {
			res.Passed = c.Threshold.Holds(value)
		}
		if !res.Passed {
			span.AddEvent("check.failed", trace.WithAttributes(
				attribute.String("check", c.Name),
				attribute.Float64("value", value),
			))
		}
		report.Results = append(report.Results, res)
	}
	span.SetAttributes(attribute.Bool("healthy", report.Healthy()))
	return report
}

// LedgerChecks are the invariants the relational store must uphold.
func LedgerChecks(db *sqlx.DB) []Check {
	count := func(query string) func(context.Context) (float64, error) {
		return func(ctx context.Context) (float64, error) {
			var n int64
			if err := db.GetContext(ctx, &n, query); err != nil {
				return 0, err
			}
			return float64(n), nil
		}
	}
	zero := Threshold{Operator: "==", Value: 0}

	return []Check{
		{
			Name:        "duplicate_ownership",
			Description: "more than one ledger entry for a (user, game) pair",
			Query: count(`
				SELECT COUNT(*) FROM (
					SELECT user_id, game_id FROM library_entries
					GROUP BY user_id, game_id HAVING COUNT(*) > 1
				) d`),
			Threshold: zero,
		},
		{
			Name:        "dangling_ownership",
			Description: "ledger entries whose game no longer exists",
			Query: count(`
				SELECT COUNT(*) FROM library_entries le
				LEFT JOIN games g ON g.id = le.game_id
				WHERE g.id IS NULL`),
			Threshold: zero,
		},
		{
			Name:        "duplicate_titles",
			Description: "catalog titles equal ignoring case",
			Query: count(`
				SELECT COUNT(*) FROM (
					SELECT lower(title) FROM games GROUP BY lower(title) HAVING COUNT(*) > 1
				) d`),
			Threshold: zero,
		},
		{
			Name:        "unjournaled_entries",
			Description: "ledger entries whose version is ahead of their journal",
			Query: count(`
				SELECT COUNT(*) FROM library_entries le
				WHERE le.version <> COALESCE((SELECT MAX(version) FROM library_events ev WHERE ev.entry_id = le.id), 0)`),
			Threshold: zero,
		},
	}
}

// MirrorDriftCheck compares the catalog size with the mirrored document
// count. Drift is expected while the mirror catches up, so it is advisory.
func MirrorDriftCheck(store catalog.Store, mirror catalog.Mirror) Check {
	return Check{
		Name:        "mirror_drift",
		Description: "difference between catalog items and mirrored documents",
		Query: func(ctx context.Context) (float64, error) {
			items, err := store.List(ctx)
			if err != nil {
				return 0, err
			}
			stats, err := mirror.PriceStatistics(ctx)
			if err != nil {
				return 0, err
			}
			return math.Abs(float64(len(items)) - float64(stats.Count)), nil
		},
		Threshold: Threshold{Operator: "==", Value: 0},
		Advisory:  true,
	}
}
