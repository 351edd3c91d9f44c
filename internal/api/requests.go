package api

import (
	"time"

	"trade-outcome-lab/internal/domain"
)

const dateLayout = "2006-01-02"

type TradeIDParam struct {
	ID string `param:"id" validate:"required,max=128"`
}

type OpenTradeRequest struct {
	User        string   `json:"user" validate:"required,max=64"`
	Ticker      string   `json:"ticker" validate:"required,max=16"`
	EntryDate   string   `json:"entry_date" validate:"required,datetime=2006-01-02"`
	EntryPrice  float64  `json:"entry_price" validate:"gt=0"`
	EntryShares int64    `json:"entry_shares" validate:"gt=0"`
	StopLoss    *float64 `json:"stop_loss" validate:"omitempty,gt=0"`
	TP1         *float64 `json:"tp1" validate:"omitempty,gt=0"`
	TP2         *float64 `json:"tp2" validate:"omitempty,gt=0"`
	TP3         *float64 `json:"tp3" validate:"omitempty,gt=0"`
}

type ExitRequest struct {
	ID     string  `param:"id" json:"-" validate:"required"`
	Date   string  `json:"date" validate:"required,datetime=2006-01-02"`
	Price  float64 `json:"price" validate:"gt=0"`
	Shares int64   `json:"shares" validate:"gt=0"`
	Reason string  `json:"reason" validate:"max=32"`
}

type ExcursionRequest struct {
	ID   string  `param:"id" json:"-" validate:"required"`
	Date string  `json:"date" validate:"required,datetime=2006-01-02"`
	High float64 `json:"high" validate:"gt=0,gtefield=Low"`
	Low  float64 `json:"low" validate:"gt=0"`
}

type AmendRequest struct {
	ID        string  `param:"id" json:"-" validate:"required"`
	ExitIndex int     `json:"exit_index" validate:"gte=0"`
	Price     float64 `json:"price" validate:"gt=0"`
	Actor     string  `json:"actor" validate:"required,max=64"`
	Note      string  `json:"note" validate:"max=500"`
}

// ScenarioBody is the wire form of domain.Scenario. InheritTradeLevels
// defaults to true when omitted.
type ScenarioBody struct {
	Name               string                `json:"name" validate:"max=64"`
	Rules              domain.ExitRuleConfig `json:"rules"`
	InheritTradeLevels *bool                 `json:"inherit_trade_levels"`
	HorizonDays        int                   `json:"horizon_days" default:"120" validate:"gt=0,lte=1000"`
}

func (b ScenarioBody) toScenario() domain.Scenario {
	inherit := true
	if b.InheritTradeLevels != nil {
		inherit = *b.InheritTradeLevels
	}
	return domain.Scenario{
		Name:               b.Name,
		Rules:              b.Rules,
		InheritTradeLevels: inherit,
		HorizonDays:        b.HorizonDays,
	}
}

type CounterfactualRequest struct {
	ID string `param:"id" json:"-" validate:"required"`
	ScenarioBody
}

type BatchCounterfactualRequest struct {
	TradeIDs []string     `json:"trade_ids" validate:"required,min=1,max=500,dive,required"`
	Scenario ScenarioBody `json:"scenario"`
}

type BatchCounterfactualResponse struct {
	Results []*domain.CounterfactualResult `json:"results"`
	Errors  []BatchErrorBody               `json:"errors"`
}

type BatchErrorBody struct {
	TradeID string `json:"trade_id"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ExitSignalRequest struct {
	Ticker     string   `json:"ticker" validate:"required,max=16"`
	EntryDate  string   `json:"entry_date" validate:"required,datetime=2006-01-02"`
	EntryPrice float64  `json:"entry_price" validate:"gt=0"`
	StopLoss   *float64 `json:"stop_loss" validate:"omitempty,gt=0"`
	// AsOf is the evaluation day; defaults to the latest available bar.
	AsOf      string   `json:"as_of" validate:"omitempty,datetime=2006-01-02"`
	Threshold *float64 `json:"threshold" validate:"omitempty,gt=0,lte=1"`
}

type CalibrationMetricsQuery struct {
	From string `query:"from" validate:"omitempty,datetime=2006-01-02"`
	To   string `query:"to" validate:"omitempty,datetime=2006-01-02"`
}

type DriftQuery struct {
	Days int `query:"days" default:"30" validate:"gt=0,lte=365"`
}

type ThresholdQuery struct {
	Current string `query:"current" validate:"omitempty,numeric"`
}

type PredictionBody struct {
	Ticker       string  `json:"ticker" validate:"required,max=16"`
	Date         string  `json:"date" validate:"required,datetime=2006-01-02"`
	Probability  float64 `json:"probability" validate:"gte=0,lte=100"`
	ModelVersion string  `json:"model_version" validate:"max=64"`
}

type PredictionsRequest struct {
	Predictions []PredictionBody `json:"predictions" validate:"required,min=1,max=1000,dive"`
}

// parseDate parses a validated YYYY-MM-DD string as UTC midnight.
func parseDate(s string) time.Time {
	t, _ := time.Parse(dateLayout, s)
	return t
}

func parseOptionalDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	t := parseDate(s)
	return &t
}
