package marketdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

const chartPayload = `{
  "chart": {
    "result": [{
      "meta": {"symbol": "AAPL", "gmtoffset": -14400},
      "timestamp": [1704205800, 1704292200, 1704378600, 1704465000],
      "indicators": {
        "quote": [{"close": [185.64, null, 181.91, 181.18]}],
        "adjclose": [{"adjclose": [184.73, null, 181.02, null]}]
      }
    }],
    "error": null
  }
}`

func TestChartClient_FetchSeries(t *testing.T) {
	var capturedPath string
	var query map[string][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedPath = r.URL.Path
		query = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(chartPayload))
	}))
	defer server.Close()

	client := NewChartClient(server.URL, zerolog.Nop())
	bars, err := client.FetchSeries(context.Background(), "AAPL", day("2024-01-01"), day("2024-01-31"))
	require.NoError(t, err)

	assert.Equal(t, "/v8/finance/chart/AAPL", capturedPath)
	assert.Equal(t, "1d", query["interval"][0])
	assert.Equal(t, "true", query["includeAdjustedClose"][0])
	assert.Equal(t, "1704067200", query["period1"][0])
	assert.Equal(t, "1706745600", query["period2"][0], "end date is inclusive")

	// The null session is skipped; missing adjclose falls back to close.
	require.Len(t, bars, 3)
	assert.Equal(t, day("2024-01-02"), bars[0].Date)
	assert.Equal(t, 184.73, bars[0].Price())
	assert.Equal(t, day("2024-01-04"), bars[1].Date)
	assert.Equal(t, day("2024-01-05"), bars[2].Date)
	assert.Equal(t, 181.18, bars[2].Price())
}

func TestChartClient_FiltersRange(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chartPayload))
	}))
	defer server.Close()

	client := NewChartClient(server.URL, zerolog.Nop())
	bars, err := client.FetchSeries(context.Background(), "AAPL", day("2024-01-04"), day("2024-01-04"))
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, day("2024-01-04"), bars[0].Date)
}

func TestChartClient_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		noData bool
	}{
		{"not found", http.StatusNotFound, `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`, true},
		{"empty result", http.StatusOK, `{"chart":{"result":[],"error":null}}`, true},
		{"no bars", http.StatusOK, `{"chart":{"result":[{"meta":{},"timestamp":[],"indicators":{"quote":[{"close":[]}]}}],"error":null}}`, true},
		{"server error", http.StatusInternalServerError, `oops`, false},
		{"malformed", http.StatusOK, `{"chart":`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewChartClient(server.URL, zerolog.Nop())
			_, err := client.FetchSeries(context.Background(), "ZZZZ", day("2024-01-01"), day("2024-02-01"))
			require.Error(t, err)
			if tt.noData {
				assert.ErrorIs(t, err, ErrNoData)
			} else {
				assert.NotErrorIs(t, err, ErrNoData)
			}
		})
	}
}

func TestNewChartClient_DefaultBaseURL(t *testing.T) {
	client := NewChartClient("", zerolog.Nop())
	assert.Equal(t, DefaultYahooBaseURL, client.baseURL)
}
