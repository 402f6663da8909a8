package strategies

import (
	"context"
	"net"
	"sort"
	"strings"

	"github.com/goletan/servicehost/internal/discovery"
	"github.com/goletan/servicehost/shared/types"
	"go.uber.org/zap"
)

// SRVScheme prefixes references resolved through DNS SRV records,
// e.g. dns+srv://_maple._tcp.example.lan.
const SRVScheme = "dns+srv://"

// LookupSRVFunc matches net.Resolver.LookupSRV.
type LookupSRVFunc func(ctx context.Context, service, proto, name string) (string, []*net.SRV, error)

type DNSDiscovery struct {
	logger *zap.Logger
	lookup LookupSRVFunc
}

// NewDNSDiscovery uses lookup, or the default resolver when lookup is nil.
func NewDNSDiscovery(log *zap.Logger, lookup LookupSRVFunc) *DNSDiscovery {
	if log == nil {
		log = zap.NewNop()
	}
	if lookup == nil {
		lookup = net.DefaultResolver.LookupSRV
	}
	return &DNSDiscovery{logger: log, lookup: lookup}
}

func (d *DNSDiscovery) Name() string {
	return "dns"
}

func (d *DNSDiscovery) Resolve(ctx context.Context, ref string) ([]types.Endpoint, error) {
	if !strings.HasPrefix(ref, SRVScheme) {
		return nil, discovery.ErrUnsupported
	}
	name := strings.TrimPrefix(ref, SRVScheme)

	_, records, err := d.lookup(ctx, "", "", name)
	if err != nil {
		d.logger.Warn("DNS lookup failed", zap.String("name", name), zap.Error(err))
		return nil, err
	}

	endpoints := make([]types.Endpoint, 0, len(records))
	for _, srv := range records {
		endpoints = append(endpoints, types.Endpoint{
			Host:     strings.TrimSuffix(srv.Target, "."),
			Port:     int(srv.Port),
			Priority: srv.Priority,
			Weight:   srv.Weight,
		})
	}
	sort.SliceStable(endpoints, func(i, j int) bool {
		if endpoints[i].Priority != endpoints[j].Priority {
			return endpoints[i].Priority < endpoints[j].Priority
		}
		return endpoints[i].Weight > endpoints[j].Weight
	})

	return endpoints, nil
}
