package domain

import "time"

// DataCategory is the second half of a federation priority key
// ("<market>_<category>" in the on-disk profile format).
type DataCategory string

const (
	CategoryBasicInfo    DataCategory = "basic_info"
	CategoryPrice        DataCategory = "price"
	CategoryFundamentals DataCategory = "fundamentals"
	CategoryNews         DataCategory = "news"
	CategoryTechnical    DataCategory = "technical"
)

// BasicInfoRecord holds static identifying data for a symbol.
type BasicInfoRecord struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Exchange string `json:"exchange"`
	Sector   string `json:"sector,omitempty"`
	Currency string `json:"currency"`
}

// PriceBar is a single OHLCV observation.
type PriceBar struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

// PriceRecord bundles the bar history fetched for one request.
type PriceRecord struct {
	Symbol string     `json:"symbol"`
	Bars   []PriceBar `json:"bars"`
}

// FundamentalsRecord holds the financial statement figures used by the
// fundamentals analyst.
type FundamentalsRecord struct {
	Symbol          string  `json:"symbol"`
	PERatio         float64 `json:"pe_ratio,omitempty"`
	PBRatio         float64 `json:"pb_ratio,omitempty"`
	ROE             float64 `json:"roe,omitempty"`
	RevenueGrowth   float64 `json:"revenue_growth,omitempty"`
	EarningsGrowth  float64 `json:"earnings_growth,omitempty"`
	DebtToEquity    float64 `json:"debt_to_equity,omitempty"`
	DividendYield   float64 `json:"dividend_yield,omitempty"`
}

// NewsItem is a single headline plus the text the news analyst reads.
type NewsItem struct {
	Title       string    `json:"title"`
	Summary     string    `json:"summary"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"published_at"`
	Sentiment   float64   `json:"sentiment,omitempty"` // -1..1, 0 if not scored
}

// NewsRecord bundles the news items fetched for one request.
type NewsRecord struct {
	Symbol string     `json:"symbol"`
	Items  []NewsItem `json:"items"`
}

// TechnicalRecord holds indicator values derived from PriceRecord.
type TechnicalRecord struct {
	Symbol   string  `json:"symbol"`
	RSI      float64 `json:"rsi,omitempty"`
	MACD     float64 `json:"macd,omitempty"`
	EMA50    float64 `json:"ema_50,omitempty"`
	EMA200   float64 `json:"ema_200,omitempty"`
	ATR      float64 `json:"atr,omitempty"`
}

// DataRecord is the common envelope returned by a data source fetch, with
// exactly one of the typed payload fields populated according to Category.
type DataRecord struct {
	Symbol       string              `json:"symbol"`
	Category     DataCategory        `json:"category"`
	Source       string              `json:"source"`
	FetchedAt    time.Time           `json:"fetched_at"`
	BasicInfo    *BasicInfoRecord    `json:"basic_info,omitempty"`
	Price        *PriceRecord        `json:"price,omitempty"`
	Fundamentals *FundamentalsRecord `json:"fundamentals,omitempty"`
	News         *NewsRecord         `json:"news,omitempty"`
	Technical    *TechnicalRecord    `json:"technical,omitempty"`
}
