package market

import (
	"time"

	"github.com/shopspring/decimal"
)

// Asset is the full per-asset snapshot as served by the provider. It is
// immutable per refresh cycle and replaced wholesale on each fetch.
type Asset struct {
	ID                       string          `json:"id"`
	Symbol                   string          `json:"symbol"`
	Name                     string          `json:"name"`
	Image                    string          `json:"image"`
	CurrentPrice             decimal.Decimal `json:"current_price"`
	MarketCap                decimal.Decimal `json:"market_cap"`
	MarketCapRank            int             `json:"market_cap_rank"`
	FullyDilutedValuation    decimal.Decimal `json:"fully_diluted_valuation"`
	TotalVolume              decimal.Decimal `json:"total_volume"`
	High24h                  decimal.Decimal `json:"high_24h"`
	Low24h                   decimal.Decimal `json:"low_24h"`
	PriceChange24h           decimal.Decimal `json:"price_change_24h"`
	PriceChangePercentage24h float64         `json:"price_change_percentage_24h"`
	CirculatingSupply        decimal.Decimal `json:"circulating_supply"`
	TotalSupply              decimal.Decimal `json:"total_supply"`
	MaxSupply                decimal.Decimal `json:"max_supply"`
	ATH                      decimal.Decimal `json:"ath"`
	ATHDate                  time.Time       `json:"ath_date"`
	ATL                      decimal.Decimal `json:"atl"`
	ATLDate                  time.Time       `json:"atl_date"`
	LastUpdated              time.Time       `json:"last_updated"`
}

// AssetLite is the lightweight projection used for bulk scans and table pushes.
type AssetLite struct {
	ID                       string          `json:"id"`
	Symbol                   string          `json:"symbol"`
	Name                     string          `json:"name"`
	Image                    string          `json:"image"`
	CurrentPrice             decimal.Decimal `json:"current_price"`
	MarketCap                decimal.Decimal `json:"market_cap"`
	MarketCapRank            int             `json:"market_cap_rank"`
	CirculatingSupply        decimal.Decimal `json:"circulating_supply"`
	PriceChangePercentage24h float64         `json:"price_change_percentage_24h"`
}

// Lite derives the lightweight projection from the full snapshot.
func (a Asset) Lite() AssetLite {
	return AssetLite{
		ID:                       a.ID,
		Symbol:                   a.Symbol,
		Name:                     a.Name,
		Image:                    a.Image,
		CurrentPrice:             a.CurrentPrice,
		MarketCap:                a.MarketCap,
		MarketCapRank:            a.MarketCapRank,
		CirculatingSupply:        a.CirculatingSupply,
		PriceChangePercentage24h: a.PriceChangePercentage24h,
	}
}

// Stats aggregates the global market figures from the provider's /global endpoint.
type Stats struct {
	ActiveCryptocurrencies       int                `json:"active_cryptocurrencies"`
	Markets                      int                `json:"markets"`
	TotalMarketCap               map[string]float64 `json:"total_market_cap"`
	TotalVolume                  map[string]float64 `json:"total_volume"`
	MarketCapPercentage          map[string]float64 `json:"market_cap_percentage"`
	MarketCapChangePercentage24h float64            `json:"market_cap_change_percentage_24h_usd"`
	UpdatedAt                    int64              `json:"updated_at"`
}
