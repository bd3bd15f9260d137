package similar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/Checker-Finance/market-intel/internal/httpclient"
)

// Name is the provider tag used for rate limiting and metrics.
const Name = "similar"

// MaxSimilar caps how many similar products are returned.
const MaxSimilar = 3

type generateRequest struct {
	Product string `json:"texto1"`
}

type generateResponse struct {
	Result []string `json:"resultado"`
}

// Client calls the remote similar-product generator.
type Client struct {
	logger  *zap.Logger
	exec    *httpclient.Executor
	baseURL string
}

func NewClient(logger *zap.Logger, exec *httpclient.Executor, baseURL string) *Client {
	return &Client{
		logger:  logger,
		exec:    exec,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Generate asks the remote generator for products similar to product.
// POST /api/ia
// The remote echoes the input product first; it is removed from the result.
func (c *Client) Generate(ctx context.Context, product string) ([]string, error) {
	data, err := json.Marshal(generateRequest{Product: product})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/ia", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	var resp generateResponse
	if err := c.exec.DoJSON(ctx, req, Name, &resp); err != nil {
		return nil, err
	}

	out := make([]string, 0, MaxSimilar)
	for _, p := range resp.Result {
		p = strings.TrimSpace(p)
		if p == "" || strings.EqualFold(p, product) {
			continue
		}
		out = append(out, p)
		if len(out) == MaxSimilar {
			break
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("similar: empty result for %q", product)
	}
	return out, nil
}

type rule struct {
	keywords []string
	products []string
}

var rules = []rule{
	{[]string{"notebook", "laptop"}, []string{"Notebook Dell Inspiron 15", "Laptop HP Pavilion", "Notebook Lenovo ThinkPad"}},
	{[]string{"mouse"}, []string{"Mouse Logitech G502", "Mouse Razer DeathAdder", "Mouse sem fio Microsoft"}},
	{[]string{"teclado"}, []string{"Teclado Mecânico Redragon", "Teclado Logitech K380", "Teclado Gamer RGB"}},
	{[]string{"monitor"}, []string{`Monitor Samsung 24"`, "Monitor LG UltraWide", `Monitor Dell 27"`}},
	{[]string{"headset", "fone"}, []string{"Headset HyperX Cloud", "Fone JBL Tune", "Headset Gamer Razer"}},
	{[]string{"caneta", "lápis"}, []string{"Caneta BIC", "Lápis Faber-Castell", "Caneta Pilot"}},
	{[]string{"camisa", "camiseta"}, []string{"Camiseta Nike", "Camiseta Adidas", "Camisa Polo Lacoste"}},
	{[]string{"celular", "smartphone"}, []string{"iPhone 14", "Samsung Galaxy S22", "Xiaomi Redmi Note"}},
	{[]string{"televisão", "tv"}, []string{`TV Samsung 55"`, `Smart TV LG 50"`, "TV 4K Sony"}},
}

// LocalSimilar generates similar products from fixed category rules.
func LocalSimilar(product string) []string {
	lower := strings.ToLower(product)
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				out := make([]string, len(r.products))
				copy(out, r.products)
				return out[:min(MaxSimilar, len(out))]
			}
		}
	}
	return []string{product + " Premium", product + " Plus", product + " Básico"}
}
