package dnsx

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeResolver struct {
	records []*net.MX
	err     error
	calls   int
}

func (f *fakeResolver) LookupMX(_ context.Context, _ string) ([]*net.MX, error) {
	f.calls++
	return f.records, f.err
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newTestResolver(t *testing.T, records []*net.MX, err error, ttl time.Duration) (*MXResolver, *fakeResolver, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	fake := &fakeResolver{records: records, err: err}
	r := NewMXResolver(NewCache(clock.Now), fake, ttl, zap.NewNop())
	return r, fake, clock
}

func TestResolveMX_CacheHitWithinTTL(t *testing.T) {
	r, fake, _ := newTestResolver(t, []*net.MX{
		{Host: "mx2.example.com.", Pref: 20},
		{Host: "mx1.example.com.", Pref: 10},
	}, nil, 5*time.Minute)

	first, err := r.ResolveMX(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := r.ResolveMX(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if fake.calls != 1 {
		t.Errorf("live lookups: got %d, want 1", fake.calls)
	}
	if len(first) != len(second) {
		t.Fatalf("cached record set differs: %v vs %v", first, second)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("record %d differs: %v vs %v", i, first[i], second[i])
		}
	}
}

func TestResolveMX_LookupAfterTTLExpiry(t *testing.T) {
	r, fake, clock := newTestResolver(t, []*net.MX{
		{Host: "mx.example.com.", Pref: 10},
	}, nil, 5*time.Minute)

	if _, err := r.ResolveMX(context.Background(), "example.com"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	clock.Advance(5*time.Minute + time.Second)

	if _, err := r.ResolveMX(context.Background(), "example.com"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fake.calls != 2 {
		t.Errorf("live lookups after expiry: got %d, want 2", fake.calls)
	}
}

func TestResolveMX_SortsByPriority(t *testing.T) {
	r, _, _ := newTestResolver(t, []*net.MX{
		{Host: "backup.example.com.", Pref: 30},
		{Host: "primary.example.com.", Pref: 5},
		{Host: "secondary.example.com.", Pref: 10},
	}, nil, time.Minute)

	records, err := r.ResolveMX(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantHosts := []string{"primary.example.com", "secondary.example.com", "backup.example.com"}
	if len(records) != len(wantHosts) {
		t.Fatalf("record count: got %d, want %d", len(records), len(wantHosts))
	}
	for i, want := range wantHosts {
		if records[i].Host != want {
			t.Errorf("record %d: got %q, want %q", i, records[i].Host, want)
		}
	}
}

func TestResolveMX_EmptyResultNotCached(t *testing.T) {
	r, fake, _ := newTestResolver(t, nil, nil, time.Minute)

	_, err := r.ResolveMX(context.Background(), "example.com")
	if !errors.Is(err, ErrNoRecords) {
		t.Fatalf("got %v, want ErrNoRecords", err)
	}

	// A negative result must not be cached: the next call looks up again.
	_, _ = r.ResolveMX(context.Background(), "example.com")
	if fake.calls != 2 {
		t.Errorf("live lookups: got %d, want 2", fake.calls)
	}
}

func TestResolveMX_LookupErrorPropagates(t *testing.T) {
	r, fake, _ := newTestResolver(t, nil, errors.New("SERVFAIL"), time.Minute)

	if _, err := r.ResolveMX(context.Background(), "example.com"); err == nil {
		t.Fatal("expected error")
	}
	if _, err := r.ResolveMX(context.Background(), "example.com"); err == nil {
		t.Fatal("expected error on second call")
	}
	if fake.calls != 2 {
		t.Errorf("failed lookups must not populate the cache: got %d calls, want 2", fake.calls)
	}
}

func TestCache_NeverServesExpiredEntry(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	cache := NewCache(clock.Now)

	cache.Set("example.com", []Exchanger{{Host: "mx.example.com", Priority: 10}}, time.Minute)

	if _, ok := cache.Get("example.com"); !ok {
		t.Fatal("fresh entry not served")
	}

	clock.Advance(time.Minute)
	if _, ok := cache.Get("example.com"); ok {
		t.Fatal("entry served at its expiry instant")
	}
}
