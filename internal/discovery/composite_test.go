package discovery_test

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/goletan/servicehost/internal/discovery"
	"github.com/goletan/servicehost/internal/discovery/strategies"
	"github.com/goletan/servicehost/shared/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func fakeSRV(ctx context.Context, service, proto, name string) (string, []*net.SRV, error) {
	if name != "_maple._tcp.home.lan" {
		return "", nil, errors.New("no such host")
	}
	return name, []*net.SRV{
		{Target: "backup.home.lan.", Port: 8485, Priority: 20, Weight: 1},
		{Target: "primary.home.lan.", Port: 8484, Priority: 10, Weight: 5},
	}, nil
}

func newResolver() *discovery.CompositeDiscovery {
	return discovery.NewCompositeDiscovery(zap.NewNop(),
		strategies.NewStaticStrategy(),
		strategies.NewDNSDiscovery(zap.NewNop(), fakeSRV),
	)
}

func TestResolveStaticAddress(t *testing.T) {
	endpoints, err := newResolver().Resolve(context.Background(), "127.0.0.1:8484")
	require.NoError(t, err)
	assert.Equal(t, []types.Endpoint{{Host: "127.0.0.1", Port: 8484}}, endpoints)
}

func TestResolveSRVOrdersByPriority(t *testing.T) {
	endpoints, err := newResolver().Resolve(context.Background(), "dns+srv://_maple._tcp.home.lan")
	require.NoError(t, err)
	require.Len(t, endpoints, 2)
	assert.Equal(t, "primary.home.lan", endpoints[0].Host)
	assert.Equal(t, 8484, endpoints[0].Port)
}

func TestResolveFailures(t *testing.T) {
	r := newResolver()

	_, err := r.Resolve(context.Background(), "dns+srv://_maple._tcp.elsewhere")
	assert.Error(t, err)

	_, err = r.Resolve(context.Background(), "not-an-address")
	assert.Error(t, err)

	_, err = r.Resolve(context.Background(), "consul://maple")
	assert.ErrorIs(t, err, discovery.ErrUnsupported)
}
