// Package lifecycle moves a trade from entry through partial fills to its
// realized result.
//
// Share conservation holds after every operation: the shares of all partial
// exits plus the remaining shares equal the entry shares. Status only moves
// forward, OPEN -> PARTIALLY_CLOSED -> CLOSED.
package lifecycle

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"trade-outcome-lab/internal/domain"
)

var (
	ErrNonPositiveShares   = errors.New("shares must be positive")
	ErrExceedsRemaining    = errors.New("shares exceed remaining position")
	ErrTradeClosed         = errors.New("trade is closed")
	ErrTradeNotClosed      = errors.New("trade is not closed")
	ErrNonPositivePrice    = errors.New("price must be positive")
	ErrExitBeforeEntry     = errors.New("exit date is before entry date")
	ErrNonPositiveRisk     = errors.New("stop-loss must be below entry price")
	ErrEmptyTicker         = errors.New("ticker is required")
	ErrExitIndexOutOfRange = errors.New("partial exit index out of range")
	ErrInvertedRange       = errors.New("low is above high")
)

// OpenRequest carries the entry attributes of a new trade.
type OpenRequest struct {
	User        string
	Ticker      string
	EntryDate   time.Time
	EntryPrice  float64
	EntryShares int64
	StopLoss    *float64
	TP1         *float64
	TP2         *float64
	TP3         *float64
}

// NewTrade validates req and returns an OPEN trade with MFE and MAE seeded at
// the entry price. The ID is left empty for the caller to assign.
func NewTrade(req OpenRequest) (*domain.Trade, error) {
	ticker := strings.ToUpper(strings.TrimSpace(req.Ticker))
	if ticker == "" {
		return nil, domain.NewValidationError("ticker", ErrEmptyTicker)
	}
	if req.EntryPrice <= 0 {
		return nil, domain.NewValidationError("entry_price", ErrNonPositivePrice)
	}
	if req.EntryShares <= 0 {
		return nil, domain.NewValidationError("entry_shares", ErrNonPositiveShares)
	}
	if req.StopLoss != nil && *req.StopLoss >= req.EntryPrice {
		return nil, domain.NewValidationError("stop_loss", ErrNonPositiveRisk)
	}
	for field, tp := range map[string]*float64{"tp1": req.TP1, "tp2": req.TP2, "tp3": req.TP3} {
		if tp != nil && *tp <= 0 {
			return nil, domain.NewValidationError(field, ErrNonPositivePrice)
		}
	}

	entryDate := domain.Day(req.EntryDate)
	return &domain.Trade{
		User:            req.User,
		Ticker:          ticker,
		EntryDate:       entryDate,
		EntryPrice:      req.EntryPrice,
		EntryShares:     req.EntryShares,
		StopLoss:        copyFloat(req.StopLoss),
		TP1:             copyFloat(req.TP1),
		TP2:             copyFloat(req.TP2),
		TP3:             copyFloat(req.TP3),
		RemainingShares: req.EntryShares,
		Status:          domain.TradeStatusOpen,
		PartialExits:    []domain.PartialExit{},
		MFE:             req.EntryPrice,
		MFEDate:         entryDate,
		MAE:             req.EntryPrice,
		MAEDate:         entryDate,
	}, nil
}

// RecordExit appends a partial exit and updates t in place. On the fill that
// brings remaining shares to zero the realized aggregates are computed.
// On error t is unchanged.
func RecordExit(t *domain.Trade, date time.Time, price float64, shares int64, reason string) error {
	if t.IsClosed() || t.RemainingShares == 0 {
		return domain.NewValidationError("trade", ErrTradeClosed)
	}
	if shares <= 0 {
		return domain.NewValidationError("shares", ErrNonPositiveShares)
	}
	if shares > t.RemainingShares {
		return domain.NewValidationError("shares", ErrExceedsRemaining)
	}
	if price <= 0 {
		return domain.NewValidationError("price", ErrNonPositivePrice)
	}
	date = domain.Day(date)
	if date.Before(t.EntryDate) {
		return domain.NewValidationError("date", ErrExitBeforeEntry)
	}
	if reason == "" {
		reason = domain.ExitReasonManual
	}

	pe := domain.PartialExit{Date: date, Price: price, Shares: shares, Reason: reason}
	priceFill(t, &pe)

	t.PartialExits = append(t.PartialExits, pe)
	t.RemainingShares -= shares
	if t.RemainingShares == 0 {
		t.Status = domain.TradeStatusClosed
		finalize(t)
	} else {
		t.Status = domain.TradeStatusPartiallyClosed
	}
	return nil
}

// UpdateExcursion folds a day's high and low into MFE and MAE. It is a no-op
// for closed trades and for dates before entry. Returns true if t changed.
func UpdateExcursion(t *domain.Trade, date time.Time, high, low float64) (bool, error) {
	if high <= 0 || low <= 0 {
		return false, domain.NewValidationError("price", ErrNonPositivePrice)
	}
	if low > high {
		return false, domain.NewValidationError("low", ErrInvertedRange)
	}
	date = domain.Day(date)
	if t.IsClosed() || date.Before(t.EntryDate) {
		return false, nil
	}

	changed := false
	if high > t.MFE {
		t.MFE = high
		t.MFEDate = date
		changed = true
	}
	if low < t.MAE {
		t.MAE = low
		t.MAEDate = date
		changed = true
	}
	return changed, nil
}

// AmendExitPrice corrects the fill price of one partial exit on a CLOSED trade
// and recomputes the per-fill and realized figures.
func AmendExitPrice(t *domain.Trade, index int, price float64) error {
	if !t.IsClosed() {
		return domain.NewValidationError("trade", ErrTradeNotClosed)
	}
	if index < 0 || index >= len(t.PartialExits) {
		return domain.NewValidationError("exit_index", ErrExitIndexOutOfRange)
	}
	if price <= 0 {
		return domain.NewValidationError("price", ErrNonPositivePrice)
	}

	pe := &t.PartialExits[index]
	pe.Price = price
	priceFill(t, pe)
	finalize(t)
	return nil
}

// priceFill sets PnL, PnLPercent and RMultiple on pe from its price and shares.
func priceFill(t *domain.Trade, pe *domain.PartialExit) {
	entry := decimal.NewFromFloat(t.EntryPrice)
	px := decimal.NewFromFloat(pe.Price)
	move := px.Sub(entry)

	pe.PnL = move.Mul(decimal.NewFromInt(pe.Shares)).InexactFloat64()
	pe.PnLPercent = move.Div(entry).Mul(decimal.NewFromInt(100)).InexactFloat64()
	pe.RMultiple = rMultiple(t, move)
}

func rMultiple(t *domain.Trade, move decimal.Decimal) *float64 {
	if t.StopLoss == nil {
		return nil
	}
	risk := decimal.NewFromFloat(t.EntryPrice).Sub(decimal.NewFromFloat(*t.StopLoss))
	if !risk.IsPositive() {
		return nil
	}
	r := move.Div(risk).InexactFloat64()
	return &r
}

// finalize computes the realized aggregates of a CLOSED trade.
func finalize(t *domain.Trade) {
	var (
		notional = decimal.Zero
		pnl      = decimal.Zero
		shares   int64
		last     time.Time
	)
	for _, pe := range t.PartialExits {
		notional = notional.Add(decimal.NewFromFloat(pe.Price).Mul(decimal.NewFromInt(pe.Shares)))
		pnl = pnl.Add(decimal.NewFromFloat(pe.PnL))
		shares += pe.Shares
		if pe.Date.After(last) {
			last = pe.Date
		}
	}
	if shares == 0 {
		return
	}

	blended := notional.Div(decimal.NewFromInt(shares))
	blendedF := blended.InexactFloat64()
	pnlF := pnl.InexactFloat64()
	holding := domain.CalendarDaysBetween(t.EntryDate, last)
	exitDate := last

	t.BlendedExitPrice = &blendedF
	t.RealizedPnL = &pnlF
	t.RealizedR = rMultiple(t, blended.Sub(decimal.NewFromFloat(t.EntryPrice)))
	t.HoldingDays = &holding
	t.ExitDate = &exitDate
	t.ExitReason = primaryReason(t.PartialExits)
}

// primaryReason is the reason of the largest exit by shares; ties go to the
// earliest exit by date, then by insertion order.
func primaryReason(exits []domain.PartialExit) string {
	best := -1
	for i, pe := range exits {
		if best < 0 {
			best = i
			continue
		}
		b := exits[best]
		if pe.Shares > b.Shares || (pe.Shares == b.Shares && pe.Date.Before(b.Date)) {
			best = i
		}
	}
	if best < 0 {
		return ""
	}
	return exits[best].Reason
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
