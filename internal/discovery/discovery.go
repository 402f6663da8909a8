package discovery

import (
	"context"
	"errors"

	"github.com/goletan/servicehost/shared/types"
)

// ErrUnsupported is returned by a Strategy that does not handle a reference.
var ErrUnsupported = errors.New("reference not supported by strategy")

// Strategy resolves a control address reference into endpoints.
type Strategy interface {
	Resolve(ctx context.Context, ref string) ([]types.Endpoint, error)
	Name() string
}
