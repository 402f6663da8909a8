package discovery

import (
	"context"
	"errors"
	"fmt"

	"github.com/goletan/servicehost/shared/types"
	"go.uber.org/zap"
)

// CompositeDiscovery asks every strategy in turn and returns the endpoints
// of the first one that resolves the reference.
type CompositeDiscovery struct {
	strategies []Strategy
	logger     *zap.Logger
}

func NewCompositeDiscovery(log *zap.Logger, strategies ...Strategy) *CompositeDiscovery {
	if log == nil {
		log = zap.NewNop()
	}
	return &CompositeDiscovery{
		strategies: strategies,
		logger:     log,
	}
}

func (cd *CompositeDiscovery) Name() string {
	return "composite"
}

func (cd *CompositeDiscovery) Resolve(ctx context.Context, ref string) ([]types.Endpoint, error) {
	var errs []error

	for _, strategy := range cd.strategies {
		endpoints, err := strategy.Resolve(ctx, ref)
		if errors.Is(err, ErrUnsupported) {
			continue
		}
		if err != nil {
			cd.logger.Warn("Discovery strategy failed",
				zap.String("strategy", strategy.Name()),
				zap.String("ref", ref),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", strategy.Name(), err))
			continue
		}
		if len(endpoints) > 0 {
			return endpoints, nil
		}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("failed to resolve %q: %w", ref, errors.Join(errs...))
	}
	return nil, fmt.Errorf("failed to resolve %q: %w", ref, ErrUnsupported)
}
