package services

import (
	"errors"
	"fmt"
	"sync"
	"unicode/utf8"
)

type Tier string

const (
	TierStandard Tier = "standard"
	TierElevated Tier = "elevated"
)

var (
	ErrInsufficientBudget = errors.New("insufficient token budget")
	ErrInvalidAmount      = errors.New("token amount must not be negative")
	ErrUnknownTier        = errors.New("unknown account tier")
)

// TierLimits holds the token ceiling of each account tier.
type TierLimits struct {
	Standard int
	Elevated int
}

func DefaultTierLimits() TierLimits {
	return TierLimits{
		Standard: 5000,
		Elevated: 100000,
	}
}

func (l TierLimits) LimitFor(tier Tier) (int, error) {
	switch tier {
	case TierStandard:
		return l.Standard, nil
	case TierElevated:
		return l.Elevated, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownTier, tier)
	}
}

func ParseTier(s string) (Tier, error) {
	switch Tier(s) {
	case TierStandard, TierElevated:
		return Tier(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTier, s)
	}
}

// EstimateCost approximates the token cost of text as one token per four
// characters, rounded up.
func EstimateCost(text string) int {
	return (utf8.RuneCountInString(text) + 3) / 4
}

type BudgetStatus string

const (
	BudgetHigh   BudgetStatus = "high"
	BudgetMedium BudgetStatus = "medium"
	BudgetLow    BudgetStatus = "low"
)

type BudgetSnapshot struct {
	Tier       Tier         `json:"tier"`
	Remaining  int          `json:"remaining"`
	Limit      int          `json:"limit"`
	Used       int          `json:"used"`
	Percentage float64      `json:"percentage"`
	Status     BudgetStatus `json:"status"`
}

// TokenAccountant owns one user's token budget. Debits are all-or-nothing:
// remaining never drops below zero and never exceeds the tier limit.
type TokenAccountant struct {
	mu        sync.Mutex
	limits    TierLimits
	tier      Tier
	remaining int
}

func NewTokenAccountant(limits TierLimits, tier Tier, remaining int) (*TokenAccountant, error) {
	limit, err := limits.LimitFor(tier)
	if err != nil {
		return nil, err
	}
	return &TokenAccountant{
		limits:    limits,
		tier:      tier,
		remaining: clamp(remaining, 0, limit),
	}, nil
}

// TryDebit subtracts amount from the budget iff amount <= remaining.
// On failure the budget is left untouched.
func (ta *TokenAccountant) TryDebit(amount int) error {
	if amount < 0 {
		return ErrInvalidAmount
	}

	ta.mu.Lock()
	defer ta.mu.Unlock()

	if amount > ta.remaining {
		return fmt.Errorf("%w: need %d tokens, %d remaining", ErrInsufficientBudget, amount, ta.remaining)
	}
	ta.remaining -= amount
	return nil
}

// Credit adds tokens back to the budget, capped at the tier limit, and
// returns the new remaining balance.
func (ta *TokenAccountant) Credit(amount int) (int, error) {
	if amount < 0 {
		return 0, ErrInvalidAmount
	}

	ta.mu.Lock()
	defer ta.mu.Unlock()

	ta.remaining = clamp(ta.remaining+amount, 0, ta.limitLocked())
	return ta.remaining, nil
}

func (ta *TokenAccountant) SetRemaining(remaining int) {
	ta.mu.Lock()
	defer ta.mu.Unlock()
	ta.remaining = clamp(remaining, 0, ta.limitLocked())
}

// Reset sets tier and remaining tokens together.
func (ta *TokenAccountant) Reset(tier Tier, remaining int) error {
	if _, err := ta.limits.LimitFor(tier); err != nil {
		return err
	}

	ta.mu.Lock()
	defer ta.mu.Unlock()

	ta.tier = tier
	ta.remaining = clamp(remaining, 0, ta.limitLocked())
	return nil
}

// SetTier switches the account tier. Remaining tokens are kept, clamped to
// the new limit.
func (ta *TokenAccountant) SetTier(tier Tier) error {
	if _, err := ta.limits.LimitFor(tier); err != nil {
		return err
	}

	ta.mu.Lock()
	defer ta.mu.Unlock()

	ta.tier = tier
	ta.remaining = clamp(ta.remaining, 0, ta.limitLocked())
	return nil
}

func (ta *TokenAccountant) Snapshot() BudgetSnapshot {
	ta.mu.Lock()
	defer ta.mu.Unlock()

	limit := ta.limitLocked()
	var percentage float64
	if limit > 0 {
		percentage = float64(ta.remaining) / float64(limit) * 100
	}

	status := BudgetLow
	switch {
	case percentage > 50:
		status = BudgetHigh
	case percentage > 20:
		status = BudgetMedium
	}

	return BudgetSnapshot{
		Tier:       ta.tier,
		Remaining:  ta.remaining,
		Limit:      limit,
		Used:       limit - ta.remaining,
		Percentage: percentage,
		Status:     status,
	}
}

func (ta *TokenAccountant) limitLocked() int {
	limit, _ := ta.limits.LimitFor(ta.tier)
	return limit
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
