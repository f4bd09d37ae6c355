package llm

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrNoGuess is returned when a provider answered but named no category.
var ErrNoGuess = errors.New("llm: no category guess")

// Provider suggests a category for one transaction.
type Provider interface {
	Name() string
	Categorize(ctx context.Context, req CategorizeRequest) (CategoryGuess, error)
}

// CategorizeRequest is the transaction plus the categories the model may pick from.
type CategorizeRequest struct {
	Description string           `json:"description"`
	Amount      decimal.Decimal  `json:"amount"`
	Type        string           `json:"type"`
	Categories  []CategoryOption `json:"categories"`
}

type CategoryOption struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CategoryGuess is the structured answer expected from every provider.
type CategoryGuess struct {
	CategoryID string  `json:"category_id"`
	Confidence float64 `json:"confidence"`
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
