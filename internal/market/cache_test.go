package market

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"coinalerts/internal/errs"
)

type fakeProvider struct {
	assets     []Asset
	stats      Stats
	err        error
	fetchCalls int
}

func (f *fakeProvider) FetchAssets(context.Context) ([]Asset, error) {
	f.fetchCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.assets, nil
}

func (f *fakeProvider) FetchStats(context.Context) (Stats, error) {
	if f.err != nil {
		return Stats{}, f.err
	}
	return f.stats, nil
}

func (f *fakeProvider) FetchChart(context.Context, string, string) (json.RawMessage, error) {
	return json.RawMessage(`{"prices":[]}`), nil
}

func testAssets() []Asset {
	return []Asset{
		{ID: "bitcoin", Symbol: "btc", Name: "Bitcoin", CurrentPrice: decimal.NewFromInt(50000)},
		{ID: "ethereum", Symbol: "eth", Name: "Ethereum", CurrentPrice: decimal.NewFromInt(3000)},
	}
}

func newTestCache(t *testing.T, provider Provider) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewCache(rdb, provider, zerolog.Nop()), mr
}

func TestRefreshPricesWritesBothProjections(t *testing.T) {
	provider := &fakeProvider{assets: testAssets()}
	cache, mr := newTestCache(t, provider)

	liteList, err := cache.RefreshPrices(context.Background())
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if len(liteList) != 2 {
		t.Fatalf("lite list size = %d, want 2", len(liteList))
	}

	if !mr.Exists("crypto:data:full") {
		t.Fatal("full hash not written")
	}
	if !mr.Exists("crypto:data:lite") {
		t.Fatal("lite list not written")
	}
}

func TestRefreshPricesKeepsOldSnapshotOnFailure(t *testing.T) {
	provider := &fakeProvider{assets: testAssets()}
	cache, mr := newTestCache(t, provider)

	if _, err := cache.RefreshPrices(context.Background()); err != nil {
		t.Fatalf("initial refresh: %v", err)
	}

	provider.err = errors.New("provider down")
	if _, err := cache.RefreshPrices(context.Background()); err == nil {
		t.Fatal("expected refresh failure")
	}
	if !mr.Exists("crypto:data:full") || !mr.Exists("crypto:data:lite") {
		t.Fatal("failed refresh must not wipe the previous snapshot")
	}
}

func TestGetRefreshesOnceOnEmptyCache(t *testing.T) {
	provider := &fakeProvider{assets: testAssets()}
	cache, _ := newTestCache(t, provider)

	asset, err := cache.Get(context.Background(), "bitcoin")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if asset.ID != "bitcoin" {
		t.Fatalf("got asset %q", asset.ID)
	}
	if provider.fetchCalls != 1 {
		t.Fatalf("fetch calls = %d, want 1", provider.fetchCalls)
	}
}

func TestGetUnknownAssetAfterRefresh(t *testing.T) {
	provider := &fakeProvider{assets: testAssets()}
	cache, _ := newTestCache(t, provider)

	if _, err := cache.RefreshPrices(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	_, err := cache.Get(context.Background(), "dogecoin")
	if !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestGetAllUnavailableWhenProviderDown(t *testing.T) {
	provider := &fakeProvider{err: errors.New("provider down")}
	cache, _ := newTestCache(t, provider)

	_, err := cache.GetAll(context.Background())
	if !errors.Is(err, errs.ErrDataUnavailable) {
		t.Fatalf("err = %v, want ErrDataUnavailable", err)
	}
}

func TestStatsRefreshesOnMiss(t *testing.T) {
	provider := &fakeProvider{stats: Stats{Markets: 900}}
	cache, _ := newTestCache(t, provider)

	stats, err := cache.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Markets != 900 {
		t.Fatalf("markets = %d, want 900", stats.Markets)
	}
}

func TestSearchMatchesNameAndSymbol(t *testing.T) {
	provider := &fakeProvider{assets: testAssets()}
	cache, _ := newTestCache(t, provider)

	if _, err := cache.RefreshPrices(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	matches, err := cache.Search(context.Background(), "BIT")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(matches) != 1 || matches[0].ID != "bitcoin" {
		t.Fatalf("matches = %+v", matches)
	}

	matches, err = cache.Search(context.Background(), "eth")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(matches) != 1 || matches[0].ID != "ethereum" {
		t.Fatalf("matches = %+v", matches)
	}

	if matches, _ := cache.Search(context.Background(), "  "); matches != nil {
		t.Fatal("blank term should match nothing")
	}
}

func TestTimeframeDays(t *testing.T) {
	cases := map[string]string{
		"7D": "7", "1M": "30", "6M": "180", "1Y": "365", "24H": "1", "": "1",
	}
	for timeframe, want := range cases {
		if got := timeframeDays(timeframe); got != want {
			t.Fatalf("timeframeDays(%q) = %q, want %q", timeframe, got, want)
		}
	}
}
