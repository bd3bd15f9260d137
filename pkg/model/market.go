package model

import "time"

// Seasonality labels attached to a product's search-interest model.
const (
	SeasonalityHigh   = "alta"
	SeasonalityStable = "estável"
	SeasonalityLow    = "baixa"
)

// Event types and impact levels for market calendar entries.
const (
	EventHoliday  = "holiday"
	EventSeasonal = "seasonal"
	EventEconomic = "economic"

	ImpactHigh   = "high"
	ImpactMedium = "medium"
	ImpactLow    = "low"
)

// Competitor is a marketplace listing comparable to the analysed product.
type Competitor struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Price        float64   `json:"price"`
	SoldQuantity int       `json:"sold_quantity"`
	MonthlySales int       `json:"monthly_sales"`
	SearchVolume int       `json:"search_volume"`
	MarketShare  int       `json:"market_share"`
	Permalink    string    `json:"permalink,omitempty"`
	Thumbnail    string    `json:"thumbnail,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	Synthetic    bool      `json:"synthetic,omitempty"`
}

// TrendPoint is one month of estimated search interest.
type TrendPoint struct {
	Date   string `json:"date"`  // first day of the month, YYYY-MM-DD
	Value  int    `json:"value"` // 0..100
	Volume int    `json:"volume"`
}

// SearchInterest is the synthesized search-interest model for a product.
type SearchInterest struct {
	Score          int          `json:"score"`
	Trend          []TrendPoint `json:"trend"`
	RelatedQueries []string     `json:"related_queries"`
	Seasonality    string       `json:"seasonality"`
}

// MarketEvent is a dated retail event relevant to demand.
type MarketEvent struct {
	Name      string    `json:"name"`
	Date      time.Time `json:"date"`
	Type      string    `json:"type"`
	Impact    string    `json:"impact"`
	DaysUntil int       `json:"days_until"`
}

// PriceComparison lines the user's price up against competitors.
type PriceComparison struct {
	Labels []string  `json:"labels"`
	Prices []float64 `json:"prices"`
}

// Popularity lists competitor sales for charting.
type Popularity struct {
	Labels []string `json:"labels"`
	Sales  []int    `json:"sales"`
}

// Insights are the human-readable commentaries of a report.
type Insights struct {
	Price      string `json:"price"`
	Popularity string `json:"popularity"`
	Search     string `json:"search"`
}

// SourceStatus records how one provider contributed to a report.
type SourceStatus struct {
	Name      string `json:"name"`
	OK        bool   `json:"ok"`
	Synthetic bool   `json:"synthetic"`
	Error     string `json:"error,omitempty"`
}

// MarketReport is the merged result of a market analysis.
type MarketReport struct {
	RequestID       string          `json:"request_id"`
	Product         string          `json:"product"`
	Price           float64         `json:"price"`
	Key             string          `json:"key"`
	Competitors     []Competitor    `json:"competitors"`
	AveragePrice    float64         `json:"average_price"`
	Search          SearchInterest  `json:"search"`
	Events          []MarketEvent   `json:"events"`
	PriceComparison PriceComparison `json:"price_comparison"`
	Popularity      Popularity      `json:"popularity"`
	Insights        Insights        `json:"insights"`
	Degraded        bool            `json:"degraded"`
	Cached          bool            `json:"cached"`
	Sources         []SourceStatus  `json:"sources"`
	GeneratedAt     time.Time       `json:"generated_at"`
}

// Holiday is a national holiday as returned by the calendar provider.
type Holiday struct {
	Date time.Time `json:"date"`
	Name string    `json:"name"`
	Type string    `json:"type"`
}

// SimilarResult is the outcome of a similar-product lookup.
type SimilarResult struct {
	Product  string   `json:"product"`
	Similar  []string `json:"similar"`
	Source   string   `json:"source"` // "remote", "local" or "cache"
	Degraded bool     `json:"degraded"`
}

// BatchStats summarises a batch run.
type BatchStats struct {
	Total       int `json:"total"`
	CacheHits   int `json:"cache_hits"`
	CacheMisses int `json:"cache_misses"`
	Degraded    int `json:"degraded"`
}

// BatchSimilarResult is returned by the batch similar-products operation.
type BatchSimilarResult struct {
	Results []SimilarResult `json:"results"`
	Stats   BatchStats      `json:"stats"`
}

// BatchAnalysisResult is returned by the batch analysis operation.
type BatchAnalysisResult struct {
	Reports []*MarketReport `json:"reports"`
	Stats   BatchStats      `json:"stats"`
}
