package dnsx

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"mailcore/pkg/metrics"
)

// Resolver is the live DNS dependency, satisfied by *net.Resolver.
type Resolver interface {
	LookupMX(ctx context.Context, name string) ([]*net.MX, error)
}

// ErrNoRecords is returned when a domain currently advertises no mail
// exchangers. This is transient from the pipeline's point of view: no
// records today does not mean the domain is permanently undeliverable, so
// the result is never cached.
var ErrNoRecords = fmt.Errorf("no MX records")

// MXResolver resolves a recipient domain to its mail exchangers, consulting
// and populating the cache. Cached entries use a fixed fallback TTL since
// the resolver does not expose the advertised record TTL.
type MXResolver struct {
	cache    *Cache
	resolver Resolver
	ttl      time.Duration
	logger   *zap.Logger
}

func NewMXResolver(cache *Cache, resolver Resolver, ttl time.Duration, logger *zap.Logger) *MXResolver {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	return &MXResolver{
		cache:    cache,
		resolver: resolver,
		ttl:      ttl,
		logger:   logger,
	}
}

// ResolveMX returns the domain's exchangers sorted by priority. Lookup
// failures and empty results propagate to the caller as retryable errors;
// negative results are not cached.
func (r *MXResolver) ResolveMX(ctx context.Context, domain string) ([]Exchanger, error) {
	domain = strings.ToLower(strings.TrimSuffix(domain, "."))

	if records, ok := r.cache.Get(domain); ok {
		metrics.IncrementMXCacheLookup("hit")
		return records, nil
	}
	metrics.IncrementMXCacheLookup("miss")

	mxs, err := r.resolver.LookupMX(ctx, domain)
	if err != nil {
		return nil, fmt.Errorf("MX lookup failed for %s: %w", domain, err)
	}
	if len(mxs) == 0 {
		return nil, fmt.Errorf("%w for %s", ErrNoRecords, domain)
	}

	records := make([]Exchanger, 0, len(mxs))
	for _, mx := range mxs {
		host := strings.TrimSuffix(mx.Host, ".")
		if host == "" {
			continue
		}
		records = append(records, Exchanger{Host: host, Priority: mx.Pref})
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w for %s", ErrNoRecords, domain)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Priority < records[j].Priority
	})

	r.cache.Set(domain, records, r.ttl)

	r.logger.Debug("Resolved MX records",
		zap.String("domain", domain),
		zap.Int("records", len(records)),
	)

	return records, nil
}
