package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/labstack/gommon/log"

	"github.com/jask/finsync/internal/database/repository"
	"github.com/jask/finsync/internal/llm"
)

const (
	patternMinConfidence      = 0.6
	patternCandidateLimit     = 20
	patternSimilarity         = 0.8
	patternAutoValidateConf   = 0.85
	patternAutoValidateOccurs = 3
)

// RuleSource lists the active reconciliation rules for a tenant and type.
type RuleSource interface {
	ListActive(ctx context.Context, organizationID, txType string) ([]repository.ReconciliationRule, error)
}

// PatternSource lists learned patterns above a confidence floor.
type PatternSource interface {
	ListCandidates(ctx context.Context, organizationID, txType string, minConfidence float64, limit int) ([]repository.TransactionPattern, error)
}

// CategorySource lists the categories the AI tier may choose from.
type CategorySource interface {
	ListActive(ctx context.Context, organizationID, txType string) ([]repository.Category, error)
}

// ClassificationWriter persists a classification.
type ClassificationWriter interface {
	UpdateClassification(ctx context.Context, id string, c repository.Classification) error
}

// Outcome describes what the cascade did with one transaction.
type Outcome struct {
	Source     string
	CategoryID string
	Validated  bool
	Skipped    bool
}

// Classified reports whether any tier assigned a category.
func (o Outcome) Classified() bool { return o.Source != "" }

// CategorizerService runs the rule, pattern and AI tiers in order. The first
// tier that matches wins.
type CategorizerService struct {
	Transactions ClassificationWriter
	Rules        RuleSource
	Patterns     PatternSource
	Categories   CategorySource
	Provider     llm.Provider
	Logger       *log.Logger
}

func (s *CategorizerService) CategorizeTransaction(ctx context.Context, tx repository.Transaction) (Outcome, error) {
	if tx.Type != repository.TypeIncome && tx.Type != repository.TypeExpense {
		return Outcome{Skipped: true}, nil
	}
	text := normalizeText(tx.Description)

	// 1) reconciliation rules
	rules, err := s.Rules.ListActive(ctx, tx.OrganizationID, tx.Type)
	if err != nil {
		return Outcome{}, fmt.Errorf("load rules: %w", err)
	}
	if rule := matchRule(text, rules); rule != nil {
		c := repository.Classification{
			CategoryID:       rule.CategoryID,
			CostCenterID:     rule.CostCenterID,
			Source:           repository.SourceRule,
			ValidationStatus: repository.Validated,
		}
		return s.write(ctx, tx.ID, c)
	}

	// 2) learned patterns
	patterns, err := s.Patterns.ListCandidates(ctx, tx.OrganizationID, tx.Type, patternMinConfidence, patternCandidateLimit)
	if err != nil {
		return Outcome{}, fmt.Errorf("load patterns: %w", err)
	}
	if p := matchPattern(text, patterns); p != nil {
		status := repository.PendingValidation
		if p.Confidence >= patternAutoValidateConf && p.Occurrences >= patternAutoValidateOccurs {
			status = repository.Validated
		}
		c := repository.Classification{
			CategoryID:       p.CategoryID,
			CostCenterID:     p.CostCenterID,
			Source:           repository.SourcePattern,
			ValidationStatus: status,
		}
		return s.write(ctx, tx.ID, c)
	}

	// 3) AI fallback
	return s.categorizeWithAI(ctx, tx)
}

func (s *CategorizerService) categorizeWithAI(ctx context.Context, tx repository.Transaction) (Outcome, error) {
	if s.Provider == nil {
		return Outcome{}, nil
	}
	cats, err := s.Categories.ListActive(ctx, tx.OrganizationID, tx.Type)
	if err != nil {
		return Outcome{}, fmt.Errorf("load categories: %w", err)
	}
	if len(cats) == 0 {
		return Outcome{}, nil
	}
	options := make([]llm.CategoryOption, 0, len(cats))
	offered := make(map[string]struct{}, len(cats))
	for _, c := range cats {
		options = append(options, llm.CategoryOption{ID: c.ID, Name: c.Name})
		offered[c.ID] = struct{}{}
	}

	guess, err := s.Provider.Categorize(ctx, llm.CategorizeRequest{
		Description: tx.Description,
		Amount:      tx.Amount,
		Type:        tx.Type,
		Categories:  options,
	})
	if err != nil {
		loggerOr(s.Logger).Warnj(log.JSON{"component": "categorizer", "transaction_id": tx.ID, "ai_error": err.Error()})
		return Outcome{}, nil
	}
	if _, ok := offered[guess.CategoryID]; !ok {
		loggerOr(s.Logger).Warnj(log.JSON{"component": "categorizer", "transaction_id": tx.ID, "rejected_category_id": guess.CategoryID})
		return Outcome{}, nil
	}
	catID := guess.CategoryID
	return s.write(ctx, tx.ID, repository.Classification{
		CategoryID:       &catID,
		Source:           repository.SourceAI,
		ValidationStatus: repository.PendingValidation,
	})
}

func (s *CategorizerService) write(ctx context.Context, id string, c repository.Classification) (Outcome, error) {
	if err := s.Transactions.UpdateClassification(ctx, id, c); err != nil {
		return Outcome{}, fmt.Errorf("write classification: %w", err)
	}
	out := Outcome{Source: c.Source, Validated: c.ValidationStatus == repository.Validated}
	if c.CategoryID != nil {
		out.CategoryID = *c.CategoryID
	}
	return out, nil
}

// matchRule returns the rule whose normalized text is contained in text, or
// contains it. Ties go to the longest rule, then the smallest edit distance,
// then the earliest created.
func matchRule(text string, rules []repository.ReconciliationRule) *repository.ReconciliationRule {
	if text == "" {
		return nil
	}
	var best *repository.ReconciliationRule
	bestLen, bestDist := -1, 0
	for i := range rules {
		rt := normalizeText(rules[i].Description)
		if rt == "" {
			continue
		}
		if !strings.Contains(text, rt) && !strings.Contains(rt, text) {
			continue
		}
		n := len([]rune(rt))
		dist := levenshtein.ComputeDistance(text, rt)
		if n > bestLen || (n == bestLen && dist < bestDist) {
			best, bestLen, bestDist = &rules[i], n, dist
		}
	}
	return best
}

// matchPattern returns the first candidate whose word overlap with text
// reaches the similarity threshold. Candidates arrive most confident first.
func matchPattern(text string, patterns []repository.TransactionPattern) *repository.TransactionPattern {
	if text == "" {
		return nil
	}
	for i := range patterns {
		if wordOverlap(text, normalizeText(patterns[i].NormalizedDescription)) >= patternSimilarity {
			return &patterns[i]
		}
	}
	return nil
}
