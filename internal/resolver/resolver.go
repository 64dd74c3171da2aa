// Package resolver maps raw order references from upstream feeds to
// canonical order ids. Upstream feeds often carry only the root of a
// posting number ("47533921-0235" while the order is "47533921-0235-1"),
// so resolution falls back to a prefix search with an explicit tie-break
// policy when several orders share the root.
package resolver

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/marginlens/reconciler/internal/repository"
)

// OrderIndex is the read access the resolver needs into the order store.
type OrderIndex interface {
	Exists(orderID string) (bool, error)
	FindByPrefix(prefix string) ([]repository.PrefixMatch, error)
}

// TieBreakPolicy picks one canonical order out of several prefix matches.
type TieBreakPolicy interface {
	Name() string
	Pick(candidates []repository.PrefixMatch) repository.PrefixMatch
}

// PreferLatest picks the candidate with the most recent order date.
// Candidates without a date lose to any dated candidate.
type PreferLatest struct{}

func (PreferLatest) Name() string { return "prefer_latest" }

func (PreferLatest) Pick(candidates []repository.PrefixMatch) repository.PrefixMatch {
	best := candidates[0]
	for _, c := range candidates[1:] {
		switch {
		case best.OrderDate == nil && c.OrderDate != nil:
			best = c
		case best.OrderDate != nil && c.OrderDate != nil && c.OrderDate.After(*best.OrderDate):
			best = c
		}
	}
	return best
}

// Resolver resolves raw references against the order index.
type Resolver struct {
	index  OrderIndex
	policy TieBreakPolicy
	log    zerolog.Logger
}

func New(index OrderIndex, policy TieBreakPolicy, log zerolog.Logger) *Resolver {
	if policy == nil {
		policy = PreferLatest{}
	}
	return &Resolver{index: index, policy: policy, log: log}
}

// Resolve maps a raw reference to (canonical order id, kept raw reference).
//
//   - exact match: the reference is returned as the order id, nothing kept;
//   - prefix match: the tie-break winner is returned, and the raw reference
//     is kept for audit;
//   - no match: the order id is empty and the raw reference is kept, so the
//     item stays in the ledger eligible for later re-resolution.
func (r *Resolver) Resolve(reference string) (orderID, extRef string, err error) {
	ref := strings.TrimSpace(reference)
	if ref == "" {
		return "", "", nil
	}

	exists, err := r.index.Exists(ref)
	if err != nil {
		return "", "", fmt.Errorf("exact lookup %q: %w", ref, err)
	}
	if exists {
		return ref, "", nil
	}

	candidates, err := r.index.FindByPrefix(ref)
	if err != nil {
		return "", "", fmt.Errorf("prefix lookup %q: %w", ref, err)
	}
	if len(candidates) == 0 {
		return "", ref, nil
	}

	picked := r.policy.Pick(candidates)
	if len(candidates) > 1 {
		// Tie-break is a heuristic, not a correctness guarantee; surface
		// every ambiguous match for manual review.
		r.log.Warn().
			Str("reference", ref).
			Str("picked", picked.OrderID).
			Int("candidates", len(candidates)).
			Str("policy", r.policy.Name()).
			Msg("ambiguous order reference, tie-break applied")
	}
	return picked.OrderID, ref, nil
}
