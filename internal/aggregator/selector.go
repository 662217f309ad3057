package aggregator

import (
	"context"
	"sort"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/nimazeighami/dust-zap-engine/internal/types"
	"github.com/nimazeighami/dust-zap-engine/internal/zaperr"
)

// Selector fans one quote request out to every adapter in parallel, waits
// for all of them to settle and ranks the successes by net USD output.
// Latency matters less than value for dust that may fail at most providers,
// so there is no first-response shortcut.
type Selector struct {
	adapters []Adapter
	log      *logrus.Entry
}

func NewSelector(log *logrus.Logger, adapters ...Adapter) *Selector {
	return &Selector{
		adapters: adapters,
		log:      log.WithField("component", "selector"),
	}
}

// GetBest returns the quote maximizing toUSD net of gas. When every adapter
// failed, the returned error carries the most informative failure kind and
// per-provider diagnostics.
func (s *Selector) GetBest(ctx context.Context, req *types.QuoteRequest) (*types.SwapQuote, error) {
	ranked, err := s.ranked(ctx, req)
	if err != nil {
		return nil, err
	}
	return ranked[0], nil
}

// GetSecondBest returns the rank-2 quote when at least two providers
// succeeded, falling back to the best otherwise. Useful against
// winner's-curse on heavily concentrated providers.
func (s *Selector) GetSecondBest(ctx context.Context, req *types.QuoteRequest) (*types.SwapQuote, error) {
	ranked, err := s.ranked(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(ranked) >= 2 {
		return ranked[1], nil
	}
	return ranked[0], nil
}

func (s *Selector) ranked(ctx context.Context, req *types.QuoteRequest) ([]*types.SwapQuote, error) {
	quotes := make([]*types.SwapQuote, len(s.adapters))
	failures := make([]error, len(s.adapters))

	g, gctx := errgroup.WithContext(ctx)
	for i, a := range s.adapters {
		i, a := i, a
		g.Go(func() error {
			q, err := callWithRetry(gctx, s.log, a, req)
			quotes[i], failures[i] = q, err
			// All adapters settle; per-provider failures are data, not
			// group errors.
			return nil
		})
	}
	_ = g.Wait()

	var ranked []*types.SwapQuote
	for _, q := range quotes {
		if q != nil {
			ranked = append(ranked, q)
		}
	}

	if len(ranked) == 0 {
		return nil, s.aggregateFailure(failures)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		cmp := ranked[i].NetToUSD().Cmp(ranked[j].NetToUSD())
		if cmp != 0 {
			return cmp > 0
		}
		return ranked[i].Provider < ranked[j].Provider
	})
	return ranked, nil
}

func (s *Selector) aggregateFailure(failures []error) error {
	kinds := make([]zaperr.Kind, 0, len(failures))
	diagnostics := make(map[string]string, len(failures))
	for i, err := range failures {
		if err == nil {
			continue
		}
		kinds = append(kinds, zaperr.KindOf(err))
		diagnostics[s.adapters[i].Name()] = err.Error()
	}

	agg := zaperr.New(zaperr.MostInformative(kinds), "all providers failed")
	agg.Diagnostics = diagnostics
	s.log.WithField("providers", diagnostics).Warn("no provider returned a quote")
	return agg
}
