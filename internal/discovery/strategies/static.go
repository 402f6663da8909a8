package strategies

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/goletan/servicehost/internal/discovery"
	"github.com/goletan/servicehost/shared/types"
)

// StaticStrategy resolves literal host:port references.
type StaticStrategy struct{}

func NewStaticStrategy() *StaticStrategy {
	return &StaticStrategy{}
}

func (s *StaticStrategy) Name() string {
	return "static"
}

func (s *StaticStrategy) Resolve(_ context.Context, ref string) ([]types.Endpoint, error) {
	if strings.Contains(ref, "://") {
		return nil, discovery.ErrUnsupported
	}

	host, portStr, err := net.SplitHostPort(ref)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", ref, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return nil, fmt.Errorf("invalid port in %q", ref)
	}

	return []types.Endpoint{{Host: host, Port: port}}, nil
}
