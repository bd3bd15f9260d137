package brasilapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/market-intel/internal/httpclient"
	"github.com/Checker-Finance/market-intel/pkg/model"
)

// Name is the provider tag used for rate limiting and metrics.
const Name = "brasilapi"

type holidayDTO struct {
	Date string `json:"date"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// Client fetches the national holiday calendar.
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

// Holidays returns the national holidays of year.
// GET /api/feriados/v1/{year}
func (c *Client) Holidays(ctx context.Context, year int) ([]model.Holiday, error) {
	url := fmt.Sprintf("%s/api/feriados/v1/%d", c.baseURL, year)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	var dtos []holidayDTO
	if err := c.exec.DoJSON(ctx, req, Name, &dtos); err != nil {
		return nil, err
	}

	out := make([]model.Holiday, 0, len(dtos))
	for _, d := range dtos {
		date, err := time.ParseInLocation("2006-01-02", d.Date, time.Local)
		if err != nil {
			c.logger.Warn("brasilapi.bad_date",
				zap.String("date", d.Date),
				zap.String("name", d.Name))
			continue
		}
		out = append(out, model.Holiday{Date: date, Name: d.Name, Type: d.Type})
	}
	return out, nil
}
