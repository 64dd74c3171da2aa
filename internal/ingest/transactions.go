package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/marginlens/reconciler/internal/classify"
	"github.com/marginlens/reconciler/internal/domain"
	"github.com/marginlens/reconciler/internal/repository"
	"github.com/marginlens/reconciler/internal/resolver"
	"github.com/marginlens/reconciler/internal/upstream"
)

// The transaction feed caps the queryable period per request, so long
// ranges are sliced into sub-windows.
const (
	financeWindowDays = 10
	financePageSize   = 200
)

// TransactionSource fetches one page of the finance transaction feed.
type TransactionSource interface {
	ListTransactions(ctx context.Context, from, to time.Time, page, pageSize int) ([]upstream.Transaction, error)
}

// TransactionAdapter ingests the windowed finance transaction feed.
// Replace scope: all finance_api rows inside the time window, with the
// deterministic uid as an idempotency backstop.
type TransactionAdapter struct {
	source   TransactionSource
	resolver *resolver.Resolver
	fees     *repository.FeeItemRepo
	log      zerolog.Logger
}

func NewTransactionAdapter(source TransactionSource, res *resolver.Resolver,
	fees *repository.FeeItemRepo, log zerolog.Logger) *TransactionAdapter {
	return &TransactionAdapter{source: source, resolver: res, fees: fees, log: log}
}

// TransactionResult summarises one feed-ingestion run.
type TransactionResult struct {
	Windows    int `json:"windows"`
	Items      int `json:"items"`
	Unresolved int `json:"unresolved"`
}

// IngestRange slices [from, to] into sub-windows and replaces each window's
// finance_api rows. A failed window aborts that window only; completed
// windows stay valid.
func (a *TransactionAdapter) IngestRange(ctx context.Context, from, to time.Time) (*TransactionResult, error) {
	res := &TransactionResult{}

	window := financeWindowDays * 24 * time.Hour
	for cur := from; !cur.After(to); {
		end := cur.Add(window - time.Second)
		if end.After(to) {
			end = to
		}

		a.log.Info().Time("from", cur).Time("to", end).Msg("finance window")
		if err := a.ingestWindow(ctx, cur, end, res); err != nil {
			return res, fmt.Errorf("window %s..%s: %w",
				cur.Format("2006-01-02"), end.Format("2006-01-02"), err)
		}
		res.Windows++

		cur = end.Add(time.Second)
	}

	a.log.Info().Int("windows", res.Windows).Int("items", res.Items).
		Int("unresolved", res.Unresolved).Msg("finance ingestion done")
	return res, nil
}

func (a *TransactionAdapter) ingestWindow(ctx context.Context, from, to time.Time, res *TransactionResult) error {
	var items []domain.FeeItem

	for page := 1; ; page++ {
		ops, err := a.source.ListTransactions(ctx, from, to, page, financePageSize)
		if err != nil {
			return fmt.Errorf("page %d: %w", page, err)
		}
		if len(ops) == 0 {
			break
		}

		for i := range ops {
			opItems, unresolved, err := a.itemsFromOperation(&ops[i])
			if err != nil {
				return err
			}
			items = append(items, opItems...)
			res.Unresolved += unresolved
		}

		if len(ops) < financePageSize {
			break
		}
	}

	inserted, err := a.fees.ReplaceFinanceWindow(from, to, items)
	if err != nil {
		return fmt.Errorf("replace window: %w", err)
	}
	res.Items += inserted
	return nil
}

// itemsFromOperation turns one feed operation into ledger rows: one row per
// service line when a breakdown is present, otherwise a single row for the
// whole operation classified from its type name.
func (a *TransactionAdapter) itemsFromOperation(op *upstream.Transaction) ([]domain.FeeItem, int, error) {
	ref := op.Posting.PostingNumber
	orderID, extRef, err := a.resolver.Resolve(ref)
	if err != nil {
		return nil, 0, fmt.Errorf("resolve %q: %w", ref, err)
	}

	unresolved := 0
	if orderID == "" && extRef != "" {
		unresolved = 1
	}

	var occurredAt *time.Time
	if t, err := time.Parse(time.RFC3339, op.OperationDate); err == nil {
		occurredAt = &t
	} else if t, err := time.Parse("2006-01-02 15:04:05", op.OperationDate); err == nil {
		occurredAt = &t
	}

	typeName := op.OperationTypeName
	if typeName == "" {
		typeName = op.OperationType
	}
	if typeName == "" {
		typeName = "UNKNOWN"
	}

	base := domain.FeeItem{
		OrderID:       orderID,
		ExtOrderID:    extRef,
		Source:        domain.SourceFinanceAPI,
		OccurredAt:    occurredAt,
		OperationType: op.OperationType,
	}

	if len(op.Services) == 0 {
		item := base
		item.FeeGroup = classify.Classify(typeName)
		item.FeeName = classify.NormalizeFeeName(typeName)
		item.Amount = parseAmount(op.Amount.String())
		item.UID = feeUID(op.OperationID, 0)
		return []domain.FeeItem{item}, unresolved, nil
	}

	items := make([]domain.FeeItem, 0, len(op.Services))
	for i, svc := range op.Services {
		name := svc.Name
		if name == "" {
			name = "UNKNOWN"
		}

		item := base
		item.FeeGroup = classify.Classify(name)
		item.FeeName = classify.NormalizeFeeName(name)
		item.Amount = parseAmount(svc.Price.String())
		item.SKU = svc.SKU
		item.UID = feeUID(op.OperationID, i)
		items = append(items, item)
	}
	return items, unresolved, nil
}

// feeUID builds the deterministic dedup key for a finance feed line.
func feeUID(operationID int64, line int) string {
	return fmt.Sprintf("%d:%d", operationID, line)
}
