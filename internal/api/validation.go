package api

import (
	"fmt"
	"math"
	"strings"
)

// MaxBatchSize caps the number of products in one batch request.
const MaxBatchSize = 50

func (r AnalysisRequest) Validate() error {
	if strings.TrimSpace(r.Product) == "" {
		return fmt.Errorf("product is required")
	}
	if r.Price <= 0 || math.IsNaN(r.Price) || math.IsInf(r.Price, 0) {
		return fmt.Errorf("price must be greater than 0")
	}
	return nil
}

func validateProducts(products []string) error {
	if len(products) == 0 {
		return fmt.Errorf("products is required")
	}
	if len(products) > MaxBatchSize {
		return fmt.Errorf("at most %d products per batch", MaxBatchSize)
	}
	for i, p := range products {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("products[%d] is empty", i)
		}
	}
	return nil
}

func (r BatchAnalysisRequest) Validate() error {
	if err := validateProducts(r.Products); err != nil {
		return err
	}
	for p, price := range r.Prices {
		if price < 0 || math.IsNaN(price) || math.IsInf(price, 0) {
			return fmt.Errorf("invalid price for %q", p)
		}
	}
	return nil
}

func (r SimilarRequest) Validate() error {
	if strings.TrimSpace(r.Product) == "" {
		return fmt.Errorf("product is required")
	}
	return nil
}

func (r BatchSimilarRequest) Validate() error {
	return validateProducts(r.Products)
}
