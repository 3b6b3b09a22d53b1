package orders

import (
	"context"

	"golang.org/x/sync/errgroup"
)

const topItemsLimit = 10

// SalesStats reports served-order revenue for every Timeframe, split by
// preparation station, with the month's best sellers.
func (s *Service) SalesStats(ctx context.Context) (SalesStats, error) {
	now := s.now()
	totals := make([]SalesTotals, len(Timeframes))
	var top []TopItem
	g, gctx := errgroup.WithContext(ctx)
	for i, tf := range Timeframes {
		i, tf := i, tf
		g.Go(func() error {
			t, err := s.repo.SalesSince(gctx, tf.Since(now))
			totals[i] = t
			return err
		})
	}
	g.Go(func() error {
		var err error
		top, err = s.repo.TopItemsSince(gctx, TimeframeMonth.Since(now), topItemsLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		return SalesStats{}, err
	}
	stats := SalesStats{GeneratedAt: now, Revenue: make(map[Timeframe]SalesTotals, len(Timeframes)), TopItems: top}
	for i, tf := range Timeframes {
		stats.Revenue[tf] = totals[i]
	}
	if stats.TopItems == nil {
		stats.TopItems = []TopItem{}
	}
	return stats, nil
}
