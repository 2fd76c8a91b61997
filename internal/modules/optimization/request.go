package optimization

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// DateLayout is the calendar date format accepted by the API.
const DateLayout = "2006-01-02"

// DefaultLookbackDays is the date range used when the caller gives no start date.
const DefaultLookbackDays = 365

// MaxFrontierSamples caps num_portfolios.
const MaxFrontierSamples = 20000

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("finite", validateFinite); err != nil {
		panic(fmt.Sprintf("register finite validation: %v", err))
	}
	return v
}

func validateFinite(fl validator.FieldLevel) bool {
	switch fl.Field().Kind() {
	case reflect.Float32, reflect.Float64:
		f := fl.Field().Float()
		return !math.IsNaN(f) && !math.IsInf(f, 0)
	default:
		return true
	}
}

// TickerList accepts either a comma separated string or a JSON array.
type TickerList []string

// UnmarshalJSON implements json.Unmarshaler.
func (t *TickerList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var list []string
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*t = list
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("tickers must be a string or an array of strings")
	}
	*t = strings.Split(s, ",")
	return nil
}

// FlexFloat accepts a JSON number or a numeric string.
type FlexFloat struct {
	Value float64
	Set   bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if string(data) == "null" {
		return nil
	}
	var raw string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return nil
		}
	} else {
		raw = string(data)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("%q is not a number", raw)
	}
	f.Value, f.Set = v, true
	return nil
}

// RawRequest is the JSON body accepted by the optimization endpoints.
type RawRequest struct {
	Tickers          TickerList `json:"tickers"`
	StartDate        string     `json:"start_date"`
	EndDate          string     `json:"end_date"`
	RiskFreeRate     FlexFloat  `json:"risk_free_rate"`
	OptimizationType string     `json:"optimization_type"`
	TargetReturn     FlexFloat  `json:"target_return"`
	NumPortfolios    int        `json:"num_portfolios"`
	Seed             *uint64    `json:"seed"`
}

// Request is a parsed and validated optimization request.
type Request struct {
	Tickers      []string  `validate:"min=2,unique,dive,required"`
	Start        time.Time `validate:"required"`
	End          time.Time `validate:"required,gtfield=Start"`
	RiskFreeRate float64   `validate:"finite"`
	Strategy     Strategy  `validate:"oneof=sharpe min_variance target_return"`
	TargetReturn *float64  `validate:"required_if=Strategy target_return,omitempty,finite"`
	Samples      int       `validate:"gte=0,lte=20000"`
	Seed         *uint64
}

// SessionParams returns the session part of the request.
func (r Request) SessionParams() SessionParams {
	return SessionParams{
		Tickers:      r.Tickers,
		Start:        r.Start,
		End:          r.End,
		RiskFreeRate: r.RiskFreeRate,
	}
}

// ParseTickers trims, upper-cases and de-duplicates tickers, keeping the
// first occurrence of each. Empty entries are dropped.
func ParseTickers(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, t := range raw {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// ParseRequest turns a raw body into a validated Request. now anchors the
// default date range (the year ending today).
func ParseRequest(raw RawRequest, now time.Time) (Request, error) {
	return ParseRequestWithRate(raw, now, DefaultRiskFreeRate)
}

// ParseRequestWithRate is ParseRequest with a configured default risk-free
// rate for bodies that omit risk_free_rate.
func ParseRequestWithRate(raw RawRequest, now time.Time, riskFreeRate float64) (Request, error) {
	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if raw.EndDate != "" {
		parsed, err := time.Parse(DateLayout, strings.TrimSpace(raw.EndDate))
		if err != nil {
			return Request{}, fmt.Errorf("%w: end_date %q is not a %s date", ErrInvalidInput, raw.EndDate, DateLayout)
		}
		end = parsed
	}
	start := end.AddDate(0, 0, -DefaultLookbackDays)
	if raw.StartDate != "" {
		parsed, err := time.Parse(DateLayout, strings.TrimSpace(raw.StartDate))
		if err != nil {
			return Request{}, fmt.Errorf("%w: start_date %q is not a %s date", ErrInvalidInput, raw.StartDate, DateLayout)
		}
		start = parsed
	}

	req := Request{
		Tickers:      ParseTickers(raw.Tickers),
		Start:        start,
		End:          end,
		RiskFreeRate: riskFreeRate,
		Strategy:     StrategyMaxSharpe,
		Samples:      raw.NumPortfolios,
		Seed:         raw.Seed,
	}
	if raw.RiskFreeRate.Set {
		req.RiskFreeRate = raw.RiskFreeRate.Value
	}
	if raw.OptimizationType != "" {
		req.Strategy = Strategy(strings.ToLower(strings.TrimSpace(raw.OptimizationType)))
	}
	if raw.TargetReturn.Set {
		target := raw.TargetReturn.Value
		req.TargetReturn = &target
	}

	if err := req.Validate(); err != nil {
		return Request{}, err
	}
	return req, nil
}

// Validate checks the request and reports every violation as ErrInvalidInput.
func (r Request) Validate() error {
	err := validate.Struct(r)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describeValidationError(fe))
	}
	return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(msgs, "; "))
}

func describeValidationError(fe validator.FieldError) string {
	switch fe.Field() {
	case "Tickers":
		switch fe.Tag() {
		case "min":
			return "please enter at least 2 ticker symbols"
		case "unique":
			return "tickers must be unique"
		}
		return "invalid tickers"
	case "End":
		if fe.Tag() == "gtfield" {
			return "start date must be before end date"
		}
	case "RiskFreeRate":
		return "risk_free_rate must be a finite number"
	case "Strategy":
		return fmt.Sprintf("invalid optimization type %q", fe.Value())
	case "TargetReturn":
		if fe.Tag() == "required_if" {
			return "target_return is required for target_return optimization"
		}
		return "target_return must be a finite number"
	case "Samples":
		return fmt.Sprintf("num_portfolios must be between 0 and %d", MaxFrontierSamples)
	}
	return fmt.Sprintf("%s failed %s validation", strings.ToLower(fe.Field()), fe.Tag())
}
