package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// DefaultYahooBaseURL is the public Yahoo Finance query host.
const DefaultYahooBaseURL = "https://query1.finance.yahoo.com"

// ChartClient reads daily history from the Yahoo v8 chart endpoint.
type ChartClient struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewChartClient creates a new chart API client. An empty baseURL uses
// DefaultYahooBaseURL.
func NewChartClient(baseURL string, log zerolog.Logger) *ChartClient {
	if baseURL == "" {
		baseURL = DefaultYahooBaseURL
	}
	return &ChartClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
		log:     log.With().Str("client", "yahoo-chart").Logger(),
	}
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol    string `json:"symbol"`
				GMTOffset int64  `json:"gmtoffset"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
				AdjClose []struct {
					AdjClose []*float64 `json:"adjclose"`
				} `json:"adjclose"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// FetchSeries fetches daily bars for symbol between start and end inclusive.
func (c *ChartClient) FetchSeries(ctx context.Context, symbol string, start, end time.Time) ([]Bar, error) {
	params := url.Values{}
	params.Set("period1", strconv.FormatInt(truncateDay(start).Unix(), 10))
	params.Set("period2", strconv.FormatInt(truncateDay(end).AddDate(0, 0, 1).Unix(), 10))
	params.Set("interval", "1d")
	params.Set("includeAdjustedClose", "true")
	params.Set("events", "div,split")

	reqURL := c.baseURL + "/v8/finance/chart/" + url.PathEscape(symbol) + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Set headers to mimic browser
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s history: %w", symbol, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var result chartResponse
	if err := json.Unmarshal(body, &result); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("yahoo chart API returned status %d for %s", resp.StatusCode, symbol)
		}
		return nil, fmt.Errorf("failed to parse %s response: %w", symbol, err)
	}

	if result.Chart.Error != nil {
		if result.Chart.Error.Code == "Not Found" {
			return nil, fmt.Errorf("%w for %s: %s", ErrNoData, symbol, result.Chart.Error.Description)
		}
		return nil, fmt.Errorf("yahoo chart API error for %s: %s", symbol, result.Chart.Error.Description)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("yahoo chart API returned status %d for %s", resp.StatusCode, symbol)
	}
	if len(result.Chart.Result) == 0 {
		return nil, fmt.Errorf("%w for %s", ErrNoData, symbol)
	}

	chart := result.Chart.Result[0]
	var closes, adjCloses []*float64
	if len(chart.Indicators.Quote) > 0 {
		closes = chart.Indicators.Quote[0].Close
	}
	if len(chart.Indicators.AdjClose) > 0 {
		adjCloses = chart.Indicators.AdjClose[0].AdjClose
	}

	bars := make([]Bar, 0, len(chart.Timestamp))
	for i, ts := range chart.Timestamp {
		var bar Bar
		// Yahoo returns nulls for halted sessions
		if i < len(closes) && closes[i] != nil {
			bar.Close = *closes[i]
		}
		if i < len(adjCloses) && adjCloses[i] != nil {
			bar.AdjClose = *adjCloses[i]
		}
		if bar.Price() <= 0 {
			continue
		}
		// Shift to exchange local time so the trading day is the calendar day.
		bar.Date = truncateDay(time.Unix(ts+chart.Meta.GMTOffset, 0).UTC())
		bars = append(bars, bar)
	}

	bars = filterRange(bars, start, end)
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w for %s between %s and %s", ErrNoData, symbol, start.Format(DateLayout), end.Format(DateLayout))
	}

	c.log.Debug().
		Str("symbol", symbol).
		Int("count", len(bars)).
		Msg("Fetched historical prices")

	return bars, nil
}
