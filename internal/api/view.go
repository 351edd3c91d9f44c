package api

import (
	"time"

	"trade-outcome-lab/internal/domain"
)

// TradeView is the JSON form of a trade.
type TradeView struct {
	ID               string             `json:"id"`
	User             string             `json:"user"`
	Ticker           string             `json:"ticker"`
	EntryDate        string             `json:"entry_date"`
	EntryPrice       float64            `json:"entry_price"`
	EntryShares      int64              `json:"entry_shares"`
	StopLoss         *float64           `json:"stop_loss,omitempty"`
	TP1              *float64           `json:"tp1,omitempty"`
	TP2              *float64           `json:"tp2,omitempty"`
	TP3              *float64           `json:"tp3,omitempty"`
	Status           domain.TradeStatus `json:"status"`
	RemainingShares  int64              `json:"remaining_shares"`
	PartialExits     []PartialExitView  `json:"partial_exits"`
	MFE              float64            `json:"mfe"`
	MFEDate          string             `json:"mfe_date"`
	MAE              float64            `json:"mae"`
	MAEDate          string             `json:"mae_date"`
	BlendedExitPrice *float64           `json:"blended_exit_price,omitempty"`
	RealizedPnL      *float64           `json:"realized_pnl,omitempty"`
	RealizedR        *float64           `json:"realized_r,omitempty"`
	HoldingDays      *int               `json:"holding_days,omitempty"`
	ExitDate         *string            `json:"exit_date,omitempty"`
	ExitReason       string             `json:"exit_reason,omitempty"`
}

type PartialExitView struct {
	Date       string   `json:"date"`
	Price      float64  `json:"price"`
	Shares     int64    `json:"shares"`
	Reason     string   `json:"reason"`
	PnL        float64  `json:"pnl"`
	PnLPercent float64  `json:"pnl_percent"`
	RMultiple  *float64 `json:"r_multiple,omitempty"`
}

func formatDate(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

func toTradeView(t *domain.Trade) TradeView {
	v := TradeView{
		ID:               t.ID,
		User:             t.User,
		Ticker:           t.Ticker,
		EntryDate:        formatDate(t.EntryDate),
		EntryPrice:       t.EntryPrice,
		EntryShares:      t.EntryShares,
		StopLoss:         t.StopLoss,
		TP1:              t.TP1,
		TP2:              t.TP2,
		TP3:              t.TP3,
		Status:           t.Status,
		RemainingShares:  t.RemainingShares,
		PartialExits:     make([]PartialExitView, 0, len(t.PartialExits)),
		MFE:              t.MFE,
		MFEDate:          formatDate(t.MFEDate),
		MAE:              t.MAE,
		MAEDate:          formatDate(t.MAEDate),
		BlendedExitPrice: t.BlendedExitPrice,
		RealizedPnL:      t.RealizedPnL,
		RealizedR:        t.RealizedR,
		HoldingDays:      t.HoldingDays,
		ExitReason:       t.ExitReason,
	}
	for _, pe := range t.PartialExits {
		v.PartialExits = append(v.PartialExits, PartialExitView{
			Date:       formatDate(pe.Date),
			Price:      pe.Price,
			Shares:     pe.Shares,
			Reason:     pe.Reason,
			PnL:        pe.PnL,
			PnLPercent: pe.PnLPercent,
			RMultiple:  pe.RMultiple,
		})
	}
	if t.ExitDate != nil {
		d := formatDate(*t.ExitDate)
		v.ExitDate = &d
	}
	return v
}
