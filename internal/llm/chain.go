package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/labstack/gommon/log"
)

// Chain tries providers in order and returns the first usable guess.
type Chain struct {
	providers []Provider
	logger    *log.Logger
}

func NewChain(logger *log.Logger, providers ...Provider) *Chain {
	c := &Chain{logger: logger}
	for _, p := range providers {
		if p != nil {
			c.providers = append(c.providers, p)
		}
	}
	return c
}

func (c *Chain) Name() string { return "chain" }

// Len reports how many providers are configured.
func (c *Chain) Len() int { return len(c.providers) }

func (c *Chain) Categorize(ctx context.Context, req CategorizeRequest) (CategoryGuess, error) {
	if len(c.providers) == 0 {
		return CategoryGuess{}, ErrNoAPIKey
	}
	var errs []error
	for _, p := range c.providers {
		guess, err := p.Categorize(ctx, req)
		if err == nil && guess.CategoryID != "" {
			return guess, nil
		}
		if err == nil {
			err = fmt.Errorf("%s: %w", p.Name(), ErrNoGuess)
		}
		if c.logger != nil {
			c.logger.Warnj(log.JSON{"component": "llm", "provider": p.Name(), "error": err.Error()})
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	return CategoryGuess{}, errors.Join(errs...)
}
