package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/surgilog/internal/domain/model"
	"github.com/okian/surgilog/internal/domain/types"
	"github.com/okian/surgilog/pkg/logger"
	"github.com/okian/surgilog/pkg/metrics"
)

// Projection names, used in logs and metrics.
const (
	ProjectionTrend        = "trend"
	ProjectionScaleHistory = "summary_scale"
	ProjectionDistribution = "distribution"
	ProjectionDashboard    = "dashboard"
)

// Querier is the read side of the persistence contract.
type Querier interface {
	Query(ctx context.Context, f model.Filter) ([]model.Record, error)
}

// Scope narrows a projection. Empty fields do not filter.
type Scope struct {
	ResidentID  string
	TeacherID   string
	SurgeryName string
	// Last bounds the summary-scale history; <= 0 uses the aggregator default.
	Last int
}

// Dashboard bundles the three projections for one scope.
type Dashboard struct {
	Trend        []TrendPoint      `json:"trend"`
	ScaleHistory []ScalePoint      `json:"summaryScale"`
	Distribution []DistributionRow `json:"distribution"`
	Skipped      int               `json:"skipped"`
}

// Aggregator reads eligible records from a Querier and projects them.
type Aggregator struct {
	store        Querier
	logger       logger.Logger
	historyLimit int
}

// Option applies a configuration option to the Aggregator.
type Option func(*Aggregator)

// WithLogger sets a custom logger for the aggregator.
func WithLogger(l logger.Logger) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithHistoryLimit sets the default number of summary-scale entries.
// A limit <= 0, the default, returns the whole history.
func WithHistoryLimit(n int) Option {
	return func(a *Aggregator) {
		a.historyLimit = n
	}
}

// NewAggregator creates an Aggregator over store.
func NewAggregator(store Querier, opts ...Option) *Aggregator {
	a := &Aggregator{
		store: store,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = logger.Default().Named("analytics")
	}
	return a
}

// Trend returns the monthly completion trend visible to actor.
func (a *Aggregator) Trend(ctx context.Context, actor types.Actor, scope Scope) ([]TrendPoint, error) {
	recs, err := a.load(ctx, ProjectionTrend, actor, scope)
	if err != nil {
		return nil, err
	}
	points, skipped := CompletionTrend(recs)
	a.reportSkipped(ctx, ProjectionTrend, skipped)
	return points, nil
}

// ScaleHistory returns the summary-scale history of scope.SurgeryName,
// newest first.
func (a *Aggregator) ScaleHistory(ctx context.Context, actor types.Actor, scope Scope) ([]ScalePoint, error) {
	recs, err := a.load(ctx, ProjectionScaleHistory, actor, scope)
	if err != nil {
		return nil, err
	}
	history, skipped := SummaryScaleHistory(recs, scope.SurgeryName, a.limit(scope))
	a.reportSkipped(ctx, ProjectionScaleHistory, skipped)
	return history, nil
}

// Distribution returns record counts per surgery name.
func (a *Aggregator) Distribution(ctx context.Context, actor types.Actor, scope Scope) ([]DistributionRow, error) {
	scope.SurgeryName = ""
	recs, err := a.load(ctx, ProjectionDistribution, actor, scope)
	if err != nil {
		return nil, err
	}
	rows, skipped := SurgeryDistribution(recs)
	a.reportSkipped(ctx, ProjectionDistribution, skipped)
	return rows, nil
}

// Dashboard computes all projections from a single read. The trend and
// history honour scope.SurgeryName; the distribution covers every surgery.
func (a *Aggregator) Dashboard(ctx context.Context, actor types.Actor, scope Scope) (Dashboard, error) {
	surgery := scope.SurgeryName
	scope.SurgeryName = ""
	recs, err := a.load(ctx, ProjectionDashboard, actor, scope)
	if err != nil {
		return Dashboard{}, err
	}

	var selected []model.Record
	if surgery == "" {
		selected = recs
	} else {
		for i := range recs {
			if recs[i].SurgeryName == surgery {
				selected = append(selected, recs[i])
			}
		}
	}

	trend, _ := CompletionTrend(selected)
	history, _ := SummaryScaleHistory(selected, surgery, a.limit(scope))
	dist, distSkipped := SurgeryDistribution(recs)
	a.reportSkipped(ctx, ProjectionDashboard, distSkipped)

	return Dashboard{
		Trend:        trend,
		ScaleHistory: history,
		Distribution: dist,
		Skipped:      len(distSkipped),
	}, nil
}

func (a *Aggregator) limit(scope Scope) int {
	if scope.Last > 0 {
		return scope.Last
	}
	return a.historyLimit
}

// load applies the actor's visibility to scope and reads eligible records.
func (a *Aggregator) load(ctx context.Context, projection string, actor types.Actor, scope Scope) ([]model.Record, error) {
	op := "analytics." + projection
	start := time.Now()
	defer func() {
		metrics.RecordAnalyticsQuery(projection, float64(time.Since(start).Microseconds())/1000)
	}()

	scope, err := restrict(op, actor, scope)
	if err != nil {
		return nil, err
	}
	recs, err := a.store.Query(ctx, model.Filter{
		Statuses:    EligibleStatuses(),
		ResidentID:  scope.ResidentID,
		TeacherID:   scope.TeacherID,
		SurgeryName: scope.SurgeryName,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return recs, nil
}

// restrict confines residents to their own records and teachers to the
// records they supervise. Admins see everything.
func restrict(op string, actor types.Actor, scope Scope) (Scope, error) {
	switch actor.Role {
	case types.RoleAdmin:
		return scope, nil
	case types.RoleResident:
		if scope.ResidentID != "" && scope.ResidentID != actor.ID {
			return Scope{}, model.WrapKind(op, model.ErrForbidden,
				fmt.Errorf("resident %q may not read analytics of %q", actor.ID, scope.ResidentID))
		}
		scope.ResidentID = actor.ID
		return scope, nil
	case types.RoleTeacher:
		if scope.TeacherID != "" && scope.TeacherID != actor.ID {
			return Scope{}, model.WrapKind(op, model.ErrForbidden,
				fmt.Errorf("teacher %q may not read analytics of teacher %q", actor.ID, scope.TeacherID))
		}
		scope.TeacherID = actor.ID
		return scope, nil
	}
	return Scope{}, model.WrapKind(op, model.ErrForbidden, fmt.Errorf("unknown role %q", actor.Role))
}

func (a *Aggregator) reportSkipped(ctx context.Context, projection string, ids []string) {
	if len(ids) == 0 {
		return
	}
	metrics.RecordAnalyticsSkipped(projection, len(ids))
	a.logger.Warn(ctx, "records without surgery name skipped",
		logger.String("projection", projection),
		logger.Int("count", len(ids)),
		logger.Any("record_ids", ids),
	)
}
