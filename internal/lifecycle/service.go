package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"trade-outcome-lab/internal/domain"
	"trade-outcome-lab/internal/idhash"
	"trade-outcome-lab/internal/logger"
	"trade-outcome-lab/internal/observability"
	"trade-outcome-lab/internal/storage"
)

// ExitRequest describes one fill against an open trade.
type ExitRequest struct {
	Date   time.Time
	Price  float64
	Shares int64
	Reason string
}

// AmendRequest corrects the price of one partial exit of a CLOSED trade.
type AmendRequest struct {
	ExitIndex int
	Price     float64
	Actor     string
	Note      string
}

// Service applies lifecycle operations to stored trades. Mutations of the
// same trade are serialized in-process; distinct trades proceed concurrently.
type Service struct {
	trades storage.TradeStore
	audit  storage.AuditLogStore
	log    *logger.Logger
	now    func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewService creates a lifecycle service.
func NewService(trades storage.TradeStore, audit storage.AuditLogStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		trades: trades,
		audit:  audit,
		log:    log.With(logger.String("component", "lifecycle")),
		now:    time.Now,
		locks:  make(map[string]*sync.Mutex),
	}
}

func (s *Service) lock(tradeID string) func() {
	s.mu.Lock()
	l, ok := s.locks[tradeID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[tradeID] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// GetTrade returns the trade or storage.ErrNotFound.
func (s *Service) GetTrade(ctx context.Context, tradeID string) (*domain.Trade, error) {
	return s.trades.GetByID(ctx, tradeID)
}

// OpenTrade validates req, assigns the deterministic trade id and stores the
// trade. Opening the same (user, ticker, entry date) twice returns
// storage.ErrDuplicateKey.
func (s *Service) OpenTrade(ctx context.Context, req OpenRequest) (*domain.Trade, error) {
	t, err := NewTrade(req)
	if err != nil {
		return nil, err
	}
	t.ID = idhash.ComputeTradeID(t.User, t.Ticker, t.EntryDate)

	if err := s.trades.Insert(ctx, t); err != nil {
		return nil, fmt.Errorf("insert trade %s: %w", t.ID, err)
	}

	observability.RecordTradeOpened()
	s.log.Info("trade opened",
		logger.String("trade_id", t.ID),
		logger.String("ticker", t.Ticker),
		logger.Int64("shares", t.EntryShares),
		logger.Float64("entry_price", t.EntryPrice),
	)
	return t, nil
}

// RecordExit applies a fill to a stored trade and persists the result.
func (s *Service) RecordExit(ctx context.Context, tradeID string, req ExitRequest) (*domain.Trade, error) {
	unlock := s.lock(tradeID)
	defer unlock()

	t, err := s.trades.GetByID(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	if err := RecordExit(t, req.Date, req.Price, req.Shares, req.Reason); err != nil {
		return nil, err
	}
	if err := s.trades.Update(ctx, t); err != nil {
		return nil, fmt.Errorf("update trade %s: %w", tradeID, err)
	}

	last := t.PartialExits[len(t.PartialExits)-1]
	observability.RecordExit(last.Reason, t.IsClosed())
	fields := []logger.Field{
		logger.String("trade_id", tradeID),
		logger.String("reason", last.Reason),
		logger.Int64("shares", last.Shares),
		logger.Int64("remaining", t.RemainingShares),
		logger.String("status", string(t.Status)),
	}
	if t.IsClosed() {
		fields = append(fields, logger.Float64("realized_pnl", *t.RealizedPnL))
	}
	s.log.Info("exit recorded", fields...)
	return t, nil
}

// UpdateExcursion folds a day's range into the trade's MFE/MAE. The trade is
// written only when something changed.
func (s *Service) UpdateExcursion(ctx context.Context, tradeID string, date time.Time, high, low float64) (*domain.Trade, error) {
	unlock := s.lock(tradeID)
	defer unlock()

	t, err := s.trades.GetByID(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	changed, err := UpdateExcursion(t, date, high, low)
	if err != nil {
		return nil, err
	}
	if !changed {
		return t, nil
	}
	if err := s.trades.Update(ctx, t); err != nil {
		return nil, fmt.Errorf("update trade %s: %w", tradeID, err)
	}
	observability.RecordExcursionUpdate()
	return t, nil
}

// ApplyBar updates the excursions of every open trade in bar's ticker.
// Returns the number of trades that changed.
func (s *Service) ApplyBar(ctx context.Context, bar domain.PriceBar) (int, error) {
	open, err := s.trades.GetOpen(ctx)
	if err != nil {
		return 0, fmt.Errorf("load open trades: %w", err)
	}

	updated := 0
	for _, t := range open {
		if !strings.EqualFold(t.Ticker, bar.Ticker) {
			continue
		}
		after, err := s.UpdateExcursion(ctx, t.ID, bar.Date, bar.High, bar.Low)
		if err != nil {
			s.log.Warn("bar not applied",
				logger.String("trade_id", t.ID),
				logger.String("ticker", bar.Ticker),
				logger.Error(err),
			)
			return updated, err
		}
		if after.MFE != t.MFE || after.MAE != t.MAE {
			updated++
		}
	}
	return updated, nil
}

type amendSnapshot struct {
	ExitIndex        int      `json:"exit_index"`
	ExitPrice        float64  `json:"exit_price"`
	BlendedExitPrice *float64 `json:"blended_exit_price"`
	RealizedPnL      *float64 `json:"realized_pnl"`
	RealizedR        *float64 `json:"realized_r"`
	ExitReason       string   `json:"exit_reason"`
}

func snapshotOf(t *domain.Trade, idx int) amendSnapshot {
	return amendSnapshot{
		ExitIndex:        idx,
		ExitPrice:        t.PartialExits[idx].Price,
		BlendedExitPrice: copyFloat(t.BlendedExitPrice),
		RealizedPnL:      copyFloat(t.RealizedPnL),
		RealizedR:        copyFloat(t.RealizedR),
		ExitReason:       t.ExitReason,
	}
}

// AmendClosedTrade is the only edit allowed on a CLOSED trade. It corrects an
// exit price, recomputes the realized figures and appends an audit entry.
func (s *Service) AmendClosedTrade(ctx context.Context, tradeID string, req AmendRequest) (*domain.Trade, error) {
	unlock := s.lock(tradeID)
	defer unlock()

	t, err := s.trades.GetByID(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	if !t.IsClosed() {
		return nil, domain.NewValidationError("trade", ErrTradeNotClosed)
	}
	if req.ExitIndex < 0 || req.ExitIndex >= len(t.PartialExits) {
		return nil, domain.NewValidationError("exit_index", ErrExitIndexOutOfRange)
	}

	original := t.Clone()
	before, err := sonic.MarshalString(snapshotOf(t, req.ExitIndex))
	if err != nil {
		return nil, fmt.Errorf("encode audit snapshot: %w", err)
	}
	if err := AmendExitPrice(t, req.ExitIndex, req.Price); err != nil {
		return nil, err
	}
	after, err := sonic.MarshalString(snapshotOf(t, req.ExitIndex))
	if err != nil {
		return nil, fmt.Errorf("encode audit snapshot: %w", err)
	}

	entry := &domain.AuditEntry{
		TradeID:   tradeID,
		Actor:     req.Actor,
		Action:    "amend_exit_price",
		Before:    before,
		After:     after,
		Note:      req.Note,
		CreatedAt: s.now().UTC(),
	}
	if err := s.updateWithAudit(ctx, original, t, entry); err != nil {
		return nil, err
	}

	observability.RecordAmendment()
	s.log.Info("closed trade amended",
		logger.String("trade_id", tradeID),
		logger.String("actor", req.Actor),
		logger.Int("exit_index", req.ExitIndex),
		logger.Float64("price", req.Price),
	)
	return t, nil
}

// updateWithAudit persists t together with its audit entry. Stores that
// cannot do both atomically get the update first and, when the append
// fails, the original trade written back.
func (s *Service) updateWithAudit(ctx context.Context, original, t *domain.Trade, e *domain.AuditEntry) error {
	if u, ok := s.trades.(storage.AuditedTradeUpdater); ok {
		if err := u.UpdateWithAudit(ctx, t, e); err != nil {
			return fmt.Errorf("update trade %s with audit: %w", t.ID, err)
		}
		return nil
	}

	if err := s.trades.Update(ctx, t); err != nil {
		return fmt.Errorf("update trade %s: %w", t.ID, err)
	}
	if err := s.audit.Append(ctx, e); err != nil {
		appendErr := fmt.Errorf("append audit entry for %s: %w", t.ID, err)
		if rbErr := s.trades.Update(ctx, original); rbErr != nil {
			s.log.Error("restore trade after audit failure",
				logger.String("trade_id", t.ID),
				logger.Error(rbErr),
			)
			return errors.Join(appendErr, fmt.Errorf("restore trade %s: %w", t.ID, rbErr))
		}
		return appendErr
	}
	return nil
}
