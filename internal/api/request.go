package api

// AnalysisRequest asks for a market report on one product.
type AnalysisRequest struct {
	Product string  `json:"product" example:"fone bluetooth"`
	Price   float64 `json:"price" example:"129.90"`
}

// BatchAnalysisRequest asks for reports on several products. Products
// missing from Prices use the default price.
type BatchAnalysisRequest struct {
	Products []string           `json:"products"`
	Prices   map[string]float64 `json:"prices,omitempty"`
}

// SimilarRequest asks for products similar to Product.
type SimilarRequest struct {
	Product string `json:"product" example:"mouse gamer"`
}

// BatchSimilarRequest asks for similar products of several products.
type BatchSimilarRequest struct {
	Products []string `json:"products"`
}
