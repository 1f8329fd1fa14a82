package incentives

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/incentives-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/incentives-backend/pkg/errors"
)

// candidate is the view of a configuration row the ranking needs.
type candidate struct {
	fields    Fields
	createdAt time.Time
	id        uuid.UUID
	signature string
}

// pick returns the index of the single best-ranked item. Ties at the best rank fail with
// AMBIGUOUS_CONFIGURATION when their payouts differ; identical payouts resolve to the
// oldest row.
func pick[T any](kind string, scope Scope, items []T, view func(T) candidate) (int, error) {
	best := -1
	var bestRank rank
	var tied []int

	for i, item := range items {
		c := view(item)
		if !c.fields.compatible(scope) {
			continue
		}
		r := rankOf(c.fields, scope)
		switch {
		case best < 0 || r.better(bestRank):
			best, bestRank = i, r
			tied = []int{i}
		case !bestRank.better(r):
			tied = append(tied, i)
		}
	}

	if best < 0 {
		return -1, pkgerrors.New(pkgerrors.CodeNotFound, "no "+kind+" matches scope")
	}
	if len(tied) == 1 {
		return best, nil
	}

	oldest := tied[0]
	oldestView := view(items[oldest])
	conflicting := []string{oldestView.id.String()}
	conflict := false
	for _, idx := range tied[1:] {
		c := view(items[idx])
		conflicting = append(conflicting, c.id.String())
		if c.signature != oldestView.signature {
			conflict = true
		}
		if c.createdAt.Before(oldestView.createdAt) ||
			(c.createdAt.Equal(oldestView.createdAt) && c.id.String() < oldestView.id.String()) {
			oldest, oldestView = idx, c
		}
	}
	if conflict {
		return -1, pkgerrors.New(pkgerrors.CodeAmbiguousConfig, "equally specific "+kind+"s disagree").
			WithDetails(map[string]any{"candidates": conflicting})
	}
	return oldest, nil
}

func ruleView(r models.IncentiveRule) candidate {
	return candidate{
		fields: Fields{
			VerticalID:    r.VerticalID,
			SupplierID:    r.SupplierID,
			UserTypeID:    r.UserTypeID,
			ProductTypeID: r.ProductTypeID,
			ProductID:     r.ProductID,
		},
		createdAt: r.CreatedAt,
		id:        r.ID,
		signature: payoutSignature(r),
	}
}

func minimumView(m models.MinimumIncentive) candidate {
	return candidate{
		fields: Fields{
			VerticalID:    m.VerticalID,
			SupplierID:    m.SupplierID,
			UserTypeID:    m.UserTypeID,
			ProductTypeID: m.ProductTypeID,
			ProductID:     m.ProductID,
		},
		createdAt: m.CreatedAt,
		id:        m.ID,
		signature: strconv.FormatInt(m.MinimumPoints, 10),
	}
}

func holdView(h models.HoldIncentive) candidate {
	return candidate{
		fields: Fields{
			VerticalID:    h.VerticalID,
			SupplierID:    h.SupplierID,
			UserTypeID:    h.UserTypeID,
			ProductTypeID: h.ProductTypeID,
			ProductID:     h.ProductID,
		},
		createdAt: h.CreatedAt,
		id:        h.ID,
		signature: h.HoldPercent.String(),
	}
}

// ResolveRule picks the applicable incentive rule out of candidates. When scope.Action is
// set, rules without a reward stream for it are not candidates.
func ResolveRule(scope Scope, rules []models.IncentiveRule) (*models.IncentiveRule, error) {
	eligible := rules
	if scope.Action != nil {
		eligible = make([]models.IncentiveRule, 0, len(rules))
		for _, r := range rules {
			if hasStream(r, *scope.Action) {
				eligible = append(eligible, r)
			}
		}
	}
	idx, err := pick("incentive rule", scope, eligible, ruleView)
	if err != nil {
		return nil, err
	}
	rule := eligible[idx]
	return &rule, nil
}

func ResolveMinimum(scope Scope, rows []models.MinimumIncentive) (*models.MinimumIncentive, error) {
	idx, err := pick("minimum incentive", scope, rows, minimumView)
	if err != nil {
		return nil, err
	}
	row := rows[idx]
	return &row, nil
}

func ResolveHold(scope Scope, rows []models.HoldIncentive) (*models.HoldIncentive, error) {
	idx, err := pick("hold incentive", scope, rows, holdView)
	if err != nil {
		return nil, err
	}
	row := rows[idx]
	return &row, nil
}

// Resolver resolves configuration for a scope against the persisted candidates.
type Resolver struct {
	repo Repository
}

func NewResolver(repo Repository) (*Resolver, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "incentives repository required")
	}
	return &Resolver{repo: repo}, nil
}

// Rule returns the single best-matching rule. NOT_FOUND is returned as-is: callers
// decide the fallback.
func (r *Resolver) Rule(ctx context.Context, scope Scope) (*models.IncentiveRule, error) {
	rows, err := r.repo.CandidateRules(ctx, scope)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load incentive rules")
	}
	return ResolveRule(scope, rows)
}

func (r *Resolver) Minimum(ctx context.Context, scope Scope) (*models.MinimumIncentive, error) {
	rows, err := r.repo.CandidateMinimums(ctx, scope)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load minimum incentives")
	}
	return ResolveMinimum(scope, rows)
}

func (r *Resolver) Hold(ctx context.Context, scope Scope) (*models.HoldIncentive, error) {
	rows, err := r.repo.CandidateHolds(ctx, scope)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load hold incentives")
	}
	return ResolveHold(scope, rows)
}
