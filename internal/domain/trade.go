package domain

import "time"

// TradeStatus is the lifecycle state of a trade.
// Transitions are monotonic: OPEN -> PARTIALLY_CLOSED -> CLOSED.
type TradeStatus string

const (
	TradeStatusOpen            TradeStatus = "OPEN"
	TradeStatusPartiallyClosed TradeStatus = "PARTIALLY_CLOSED"
	TradeStatusClosed          TradeStatus = "CLOSED"
)

// Exit reason codes.
const (
	ExitReasonMaxHolding   = "MAX_HOLDING"
	ExitReasonStopLoss     = "STOP_LOSS"
	ExitReasonTrailingStop = "TRAILING_STOP"
	ExitReasonModelExit    = "MODEL_EXIT"
	ExitReasonTakeProfit3  = "TAKE_PROFIT_3"
	ExitReasonTakeProfit2  = "TAKE_PROFIT_2"
	ExitReasonTakeProfit1  = "TAKE_PROFIT_1"
	ExitReasonStillOpen    = "STILL_OPEN"
	ExitReasonManual       = "MANUAL"
)

// Trade is a long position tracked from entry to final exit.
// Entry attributes are fixed at creation; everything below "Mutable" changes
// only through lifecycle operations.
type Trade struct {
	ID          string // deterministic hash of (user, ticker, entry_date)
	User        string
	Ticker      string
	EntryDate   time.Time
	EntryPrice  float64
	EntryShares int64
	StopLoss    *float64
	TP1         *float64
	TP2         *float64
	TP3         *float64

	// Mutable
	RemainingShares int64
	Status          TradeStatus
	PartialExits    []PartialExit
	MFE             float64   // best high seen since entry
	MFEDate         time.Time // date MFE was observed
	MAE             float64   // worst low seen since entry
	MAEDate         time.Time // date MAE was observed

	// Set once CLOSED
	BlendedExitPrice *float64
	RealizedPnL      *float64
	RealizedR        *float64
	HoldingDays      *int
	ExitDate         *time.Time
	ExitReason       string
}

// PartialExit is one fill against a trade. Append-only.
type PartialExit struct {
	Date       time.Time
	Price      float64
	Shares     int64
	Reason     string
	PnL        float64
	PnLPercent float64
	RMultiple  *float64 // nil when the trade has no stop-loss
}

// RiskPerShare returns entry - stop, or false when no stop-loss is set.
func (t *Trade) RiskPerShare() (float64, bool) {
	if t.StopLoss == nil {
		return 0, false
	}
	return t.EntryPrice - *t.StopLoss, true
}

// ExitedShares sums shares across all partial exits.
func (t *Trade) ExitedShares() int64 {
	var n int64
	for _, pe := range t.PartialExits {
		n += pe.Shares
	}
	return n
}

// IsClosed reports whether the trade has no remaining shares.
func (t *Trade) IsClosed() bool {
	return t.Status == TradeStatusClosed
}

// Clone returns a deep copy safe to hand across goroutines.
func (t *Trade) Clone() *Trade {
	c := *t
	c.PartialExits = append([]PartialExit(nil), t.PartialExits...)
	for i := range c.PartialExits {
		c.PartialExits[i].RMultiple = cloneFloat(t.PartialExits[i].RMultiple)
	}
	c.StopLoss = cloneFloat(t.StopLoss)
	c.TP1 = cloneFloat(t.TP1)
	c.TP2 = cloneFloat(t.TP2)
	c.TP3 = cloneFloat(t.TP3)
	c.BlendedExitPrice = cloneFloat(t.BlendedExitPrice)
	c.RealizedPnL = cloneFloat(t.RealizedPnL)
	c.RealizedR = cloneFloat(t.RealizedR)
	if t.HoldingDays != nil {
		h := *t.HoldingDays
		c.HoldingDays = &h
	}
	if t.ExitDate != nil {
		d := *t.ExitDate
		c.ExitDate = &d
	}
	return &c
}

// AuditEntry records an explicit edit of a CLOSED trade.
type AuditEntry struct {
	TradeID   string
	Actor     string
	Action    string
	Before    string // JSON snapshot of changed fields
	After     string
	Note      string
	CreatedAt time.Time
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
