package balances

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// RepositoryPort abstracts the aggregation queries.
type RepositoryPort interface {
	AccountActivity(ctx context.Context, asOf time.Time) ([]AccountActivity, error)
	SingleAccountActivity(ctx context.Context, code string, asOf time.Time) (AccountActivity, error)
	MonthlyActivity(ctx context.Context, code string, from, to time.Time) ([]MonthlyActivity, error)
	SubsidiaryTotal(ctx context.Context, side string) (decimal.Decimal, error)
}

// HistoryGrouper turns raw monthly activity into a series. Buckets with
// no movement are simply absent; a renderer that wants continuous
// months fills them client side.
type HistoryGrouper interface {
	Series(opening decimal.Decimal, activity []MonthlyActivity) []BalancePoint
}

// MonthlyGrouper is the default grouper with a running balance.
type MonthlyGrouper struct{}

// Series computes net and running values per bucket.
func (MonthlyGrouper) Series(opening decimal.Decimal, activity []MonthlyActivity) []BalancePoint {
	running := opening
	points := make([]BalancePoint, 0, len(activity))
	for _, m := range activity {
		net := m.Debit.Sub(m.Credit)
		running = running.Add(net)
		points = append(points, BalancePoint{
			Bucket:  m.Bucket,
			Debit:   m.Debit,
			Credit:  m.Credit,
			Net:     net,
			Running: running,
		})
	}
	return points
}

// Service computes balances on demand, with a versioned cache in front.
type Service struct {
	repo    RepositoryPort
	cache   *Cache
	grouper HistoryGrouper
}

// NewService constructs the balance aggregator.
func NewService(repo RepositoryPort, cache *Cache, grouper HistoryGrouper) *Service {
	if grouper == nil {
		grouper = MonthlyGrouper{}
	}
	return &Service{repo: repo, cache: cache, grouper: grouper}
}

// TrialBalance builds the grouped trial balance as of the given date.
func (s *Service) TrialBalance(ctx context.Context, asOf time.Time) (TrialBalance, error) {
	day := asOf.Format("2006-01-02")
	key, err := s.cache.BuildKey(ctx, keyTrialBalance(day))
	if err != nil {
		return TrialBalance{}, err
	}
	var tb TrialBalance
	err = s.cache.FetchJSON(ctx, key, &tb, func(ctx context.Context) (interface{}, error) {
		activity, err := s.repo.AccountActivity(ctx, asOf)
		if err != nil {
			return nil, err
		}
		return BuildTrialBalance(day, activity), nil
	})
	if err != nil {
		return TrialBalance{}, err
	}
	return tb, nil
}

// AccountBalance returns one account's signed balance as of the date.
func (s *Service) AccountBalance(ctx context.Context, code string, asOf time.Time) (AccountBalance, error) {
	if code == "" {
		return AccountBalance{}, errors.New("balances: account code required")
	}
	day := asOf.Format("2006-01-02")
	key, err := s.cache.BuildKey(ctx, keyAccountBalance(code, day))
	if err != nil {
		return AccountBalance{}, err
	}
	var balance AccountBalance
	err = s.cache.FetchJSON(ctx, key, &balance, func(ctx context.Context) (interface{}, error) {
		activity, err := s.repo.SingleAccountActivity(ctx, code, asOf)
		if err != nil {
			return nil, err
		}
		return AccountBalance{
			Code:    activity.Code,
			Name:    activity.Name,
			Type:    string(activity.Type),
			AsOf:    day,
			Debit:   activity.Debit,
			Credit:  activity.Credit,
			Balance: SignedBalance(activity.Type, activity.Debit, activity.Credit),
		}, nil
	})
	if err != nil {
		return AccountBalance{}, err
	}
	return balance, nil
}

// BalanceHistory returns the monthly series for one account. The
// running value starts from the balance just before the window.
func (s *Service) BalanceHistory(ctx context.Context, code string, from, to time.Time) ([]BalancePoint, error) {
	if code == "" {
		return nil, errors.New("balances: account code required")
	}
	if to.Before(from) {
		return nil, errors.New("balances: history range inverted")
	}
	fromDay := from.Format("2006-01-02")
	toDay := to.Format("2006-01-02")
	key, err := s.cache.BuildKey(ctx, keyHistory(code, fromDay, toDay))
	if err != nil {
		return nil, err
	}
	var points []BalancePoint
	err = s.cache.FetchJSON(ctx, key, &points, func(ctx context.Context) (interface{}, error) {
		opening, err := s.repo.SingleAccountActivity(ctx, code, from.AddDate(0, 0, -1))
		if err != nil {
			return nil, err
		}
		activity, err := s.repo.MonthlyActivity(ctx, code, from, to)
		if err != nil {
			return nil, err
		}
		series := s.grouper.Series(opening.Net(), activity)
		return series, nil
	})
	if err != nil {
		return nil, err
	}
	return points, nil
}

// TieOut compares a control account against the subsidiary it
// summarizes. Signed balances line up directly: the AR control is
// debit normal like the receivable totals, the AP control is credit
// normal like the payable totals. Never cached, it exists to detect
// cache-column drift.
func (s *Service) TieOut(ctx context.Context, side, controlCode string, asOf time.Time) (TieOut, error) {
	control, err := s.AccountBalance(ctx, controlCode, asOf)
	if err != nil {
		return TieOut{}, err
	}
	total, err := s.repo.SubsidiaryTotal(ctx, side)
	if err != nil {
		return TieOut{}, err
	}
	return TieOut{
		Side:            side,
		ControlCode:     controlCode,
		AsOf:            asOf.Format("2006-01-02"),
		ControlBalance:  control.Balance,
		SubsidiaryTotal: total,
		Difference:      control.Balance.Sub(total),
	}, nil
}

// Bump invalidates cached aggregates after a ledger write.
func (s *Service) Bump(ctx context.Context) error {
	return s.cache.Bump(ctx)
}
