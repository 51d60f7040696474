package posting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	ledgershared "github.com/Assyrianfidi/ChronaWorkFlow-sub017/internal/ledger/shared"
	"github.com/Assyrianfidi/ChronaWorkFlow-sub017/internal/observability"
	internalshared "github.com/Assyrianfidi/ChronaWorkFlow-sub017/internal/shared"
	"github.com/Assyrianfidi/ChronaWorkFlow-sub017/internal/tenant"
)

// AuditPort records ledger events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log internalshared.AuditLog) error
}

// BalanceInvalidator drops memoized balance rollups after a posting.
type BalanceInvalidator interface {
	Invalidate(ctx context.Context, tenantID uuid.UUID) error
}

// Engine posts balanced transactions and applies balance deltas atomically.
// It is the only component permitted to mutate Account.Balance.
type Engine struct {
	repo        Repository
	audit       AuditPort
	invalidator BalanceInvalidator
	metrics     *observability.LedgerMetrics
	maxRetries  int
	retryDelay  time.Duration
	now         func() time.Time
}

// NewEngine constructs the posting engine. maxRetries bounds the
// optimistic-concurrency loop before ErrConcurrentUpdateConflict surfaces.
func NewEngine(repo Repository, audit AuditPort, invalidator BalanceInvalidator, metrics *observability.LedgerMetrics, maxRetries int, retryDelay time.Duration) *Engine {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Engine{
		repo:        repo,
		audit:       audit,
		invalidator: invalidator,
		metrics:     metrics,
		maxRetries:  maxRetries,
		retryDelay:  retryDelay,
		now:         time.Now,
	}
}

// WithNow overrides the clock for testing.
func (e *Engine) WithNow(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

// Get loads a transaction with its lines.
func (e *Engine) Get(ctx context.Context, id int64) (Transaction, error) {
	return e.repo.Get(ctx, id)
}

// GetByNumber loads a transaction by its tenant-scoped number.
func (e *Engine) GetByNumber(ctx context.Context, number string) (Transaction, error) {
	return e.repo.GetByNumber(ctx, number)
}

// List returns recent transactions, newest first.
func (e *Engine) List(ctx context.Context, limit, offset int) ([]Transaction, int, error) {
	return e.repo.List(ctx, limit, offset)
}

// PostTransaction validates, persists, and applies a balanced transaction as
// one atomic unit. Transient balance conflicts are retried internally with a
// bounded backoff; every other failure leaves no partial state.
func (e *Engine) PostTransaction(ctx context.Context, in PostingInput) (Transaction, error) {
	if err := in.Validate(); err != nil {
		return Transaction{}, err
	}
	var posted Transaction
	var err error
	for attempt := 0; attempt < e.maxRetries; attempt++ {
		posted, err = e.postOnce(ctx, in, nil)
		if !errors.Is(err, ledgershared.ErrConcurrentUpdateConflict) {
			break
		}
		select {
		case <-ctx.Done():
			return Transaction{}, e.mapCtxErr(ctx.Err())
		case <-time.After(e.retryDelay * time.Duration(attempt+1)):
		}
	}
	if err != nil {
		return Transaction{}, e.observeFailure(err)
	}
	e.afterPost(ctx, posted, "transaction.post")
	return posted, nil
}

// ReverseTransaction posts a compensating transaction with every line's
// debit and credit swapped. The original record is never touched.
func (e *Engine) ReverseTransaction(ctx context.Context, in ReverseInput) (Transaction, error) {
	if in.TransactionID == 0 {
		return Transaction{}, ledgershared.ErrTransactionNotFound
	}
	original, err := e.repo.Get(ctx, in.TransactionID)
	if err != nil {
		return Transaction{}, err
	}
	date := in.Date
	if date.IsZero() {
		date = e.now()
	}
	description := in.Description
	if description == "" {
		description = fmt.Sprintf("Reversal of %s", original.Number)
	}
	input := PostingInput{
		Type:        original.Type,
		Date:        date,
		Number:      in.Number,
		Description: description,
		Reference:   original.Number,
		Lines:       swapLines(original.Lines),
	}
	if err := input.Validate(); err != nil {
		return Transaction{}, err
	}
	var posted Transaction
	for attempt := 0; attempt < e.maxRetries; attempt++ {
		posted, err = e.postOnce(ctx, input, &original.ID)
		if !errors.Is(err, ledgershared.ErrConcurrentUpdateConflict) {
			break
		}
		select {
		case <-ctx.Done():
			return Transaction{}, e.mapCtxErr(ctx.Err())
		case <-time.After(e.retryDelay * time.Duration(attempt+1)):
		}
	}
	if err != nil {
		return Transaction{}, e.observeFailure(err)
	}
	e.afterPost(ctx, posted, "transaction.reverse")
	return posted, nil
}

// postOnce runs one attempt of the posting algorithm inside a single
// storage transaction: resolve and lock accounts, assign the number,
// persist the transaction with its lines, and apply every signed delta.
func (e *Engine) postOnce(ctx context.Context, in PostingInput, reverses *int64) (Transaction, error) {
	var posted Transaction
	err := e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ids := make([]int64, 0, len(in.Lines))
		seen := make(map[int64]bool, len(in.Lines))
		for _, line := range in.Lines {
			if !seen[line.AccountID] {
				seen[line.AccountID] = true
				ids = append(ids, line.AccountID)
			}
		}
		locked, err := tx.LockAccounts(ctx, ids)
		if err != nil {
			return err
		}
		for _, id := range ids {
			account, ok := locked[id]
			if !ok || !account.IsActive {
				return ledgershared.ErrUnknownAccount
			}
		}

		number := in.Number
		if number == "" {
			number, err = tx.NextNumber(ctx)
			if err != nil {
				return err
			}
		}

		inserted, err := tx.InsertTransaction(ctx, in, number, in.Total(), reverses)
		if err != nil {
			return err
		}
		if err := tx.InsertLines(ctx, inserted.ID, in.Lines); err != nil {
			return err
		}

		// Aggregate per account first: a transaction may carry several
		// lines against the same account but each version check must run
		// exactly once.
		deltas := make(map[int64]decimal.Decimal, len(ids))
		for _, line := range in.Lines {
			account := locked[line.AccountID]
			delta := account.Type.BalanceDelta(line.Debit, line.Credit)
			deltas[line.AccountID] = deltas[line.AccountID].Add(delta)
		}
		for _, id := range ids {
			if err := tx.ApplyBalanceDelta(ctx, id, deltas[id], locked[id].Version); err != nil {
				return err
			}
		}

		inserted.Lines = toLines(inserted.ID, in.Lines)
		posted = inserted
		return nil
	})
	if err != nil {
		return Transaction{}, e.mapCtxErr(err)
	}
	return posted, nil
}

func (e *Engine) afterPost(ctx context.Context, posted Transaction, action string) {
	if e.invalidator != nil {
		if tenantID, err := tenant.FromContext(ctx); err == nil {
			_ = e.invalidator.Invalidate(ctx, tenantID)
		}
	}
	if e.metrics != nil {
		e.metrics.PostingsTotal.WithLabelValues(string(posted.Type)).Inc()
	}
	if e.audit != nil {
		_ = e.audit.Record(ctx, internalshared.AuditLog{
			Action:   action,
			Entity:   "transaction",
			EntityID: fmt.Sprintf("%d", posted.ID),
			Meta: map[string]any{
				"number": posted.Number,
				"type":   string(posted.Type),
				"total":  posted.Total.String(),
			},
			At: e.now(),
		})
	}
}

func (e *Engine) observeFailure(err error) error {
	if e.metrics != nil {
		switch {
		case errors.Is(err, ledgershared.ErrConcurrentUpdateConflict):
			e.metrics.PostingConflicts.Inc()
		case errors.Is(err, ledgershared.ErrPostingTimeout):
			e.metrics.PostingTimeouts.Inc()
		}
	}
	return err
}

// mapCtxErr converts deadline expiry into the posting taxonomy: a timed-out
// posting left no partial state, so the caller may retry with the same
// transaction number.
func (e *Engine) mapCtxErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ledgershared.ErrPostingTimeout
	}
	return err
}

func swapLines(lines []TransactionLine) []LineInput {
	out := make([]LineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, LineInput{
			AccountID:   line.AccountID,
			Debit:       line.Credit,
			Credit:      line.Debit,
			Description: line.Description,
		})
	}
	return out
}

func toLines(transactionID int64, lines []LineInput) []TransactionLine {
	out := make([]TransactionLine, 0, len(lines))
	for _, line := range lines {
		out = append(out, TransactionLine{
			TransactionID: transactionID,
			AccountID:     line.AccountID,
			Debit:         line.Debit,
			Credit:        line.Credit,
			Description:   line.Description,
		})
	}
	return out
}
