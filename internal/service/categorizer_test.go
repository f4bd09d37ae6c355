package service

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/jask/finsync/internal/database/repository"
	"github.com/jask/finsync/internal/llm"
)

type spyRules struct {
	rules []repository.ReconciliationRule
	calls int
}

func (s *spyRules) ListActive(context.Context, string, string) ([]repository.ReconciliationRule, error) {
	s.calls++
	return s.rules, nil
}

type spyPatterns struct {
	patterns []repository.TransactionPattern
	calls    int
	minConf  float64
	limit    int
}

func (s *spyPatterns) ListCandidates(_ context.Context, _, _ string, minConf float64, limit int) ([]repository.TransactionPattern, error) {
	s.calls++
	s.minConf, s.limit = minConf, limit
	return s.patterns, nil
}

type spyCategories struct {
	categories []repository.Category
	calls      int
}

func (s *spyCategories) ListActive(context.Context, string, string) ([]repository.Category, error) {
	s.calls++
	return s.categories, nil
}

type spyWriter struct {
	writes map[string]repository.Classification
}

func (s *spyWriter) UpdateClassification(_ context.Context, id string, c repository.Classification) error {
	if s.writes == nil {
		s.writes = map[string]repository.Classification{}
	}
	s.writes[id] = c
	return nil
}

type spyProvider struct {
	guess llm.CategoryGuess
	err   error
	calls int
	last  llm.CategorizeRequest
}

func (s *spyProvider) Name() string { return "spy" }

func (s *spyProvider) Categorize(_ context.Context, req llm.CategorizeRequest) (llm.CategoryGuess, error) {
	s.calls++
	s.last = req
	return s.guess, s.err
}

type categorizerFixture struct {
	rules      *spyRules
	patterns   *spyPatterns
	categories *spyCategories
	writer     *spyWriter
	provider   *spyProvider
	svc        *CategorizerService
}

func newCategorizerFixture() *categorizerFixture {
	f := &categorizerFixture{
		rules:      &spyRules{},
		patterns:   &spyPatterns{},
		categories: &spyCategories{},
		writer:     &spyWriter{},
		provider:   &spyProvider{},
	}
	f.svc = &CategorizerService{
		Transactions: f.writer,
		Rules:        f.rules,
		Patterns:     f.patterns,
		Categories:   f.categories,
		Provider:     f.provider,
		Logger:       quietLogger(),
	}
	return f
}

func expenseTx(description string) repository.Transaction {
	return repository.Transaction{
		ID:             "tx-1",
		OrganizationID: testOrg,
		Description:    description,
		Amount:         decimal.RequireFromString("99.90"),
		Type:           repository.TypeExpense,
	}
}

func TestRuleWinsOverPatternAndAI(t *testing.T) {
	t.Parallel()

	f := newCategorizerFixture()
	f.rules.rules = []repository.ReconciliationRule{{ID: "r1", Description: "Energia Elétrica", CategoryID: strPtr("cat-utilities"), CostCenterID: strPtr("cc-ops")}}
	f.patterns.patterns = []repository.TransactionPattern{{ID: "p1", NormalizedDescription: "conta energia eletrica cemig", CategoryID: strPtr("cat-other"), Confidence: 0.95, Occurrences: 10}}

	out, err := f.svc.CategorizeTransaction(context.Background(), expenseTx("CONTA ENERGIA ELÉTRICA - CEMIG"))
	require.NoError(t, err)
	require.Equal(t, repository.SourceRule, out.Source)
	require.True(t, out.Validated)

	c := f.writer.writes["tx-1"]
	require.Equal(t, "cat-utilities", *c.CategoryID)
	require.Equal(t, "cc-ops", *c.CostCenterID)
	require.Equal(t, repository.SourceRule, c.Source)
	require.Equal(t, repository.Validated, c.ValidationStatus)

	require.Equal(t, 1, f.rules.calls)
	require.Equal(t, 0, f.patterns.calls)
	require.Equal(t, 0, f.categories.calls)
	require.Equal(t, 0, f.provider.calls)
}

func TestRuleMatchesInEitherDirection(t *testing.T) {
	t.Parallel()

	f := newCategorizerFixture()
	f.rules.rules = []repository.ReconciliationRule{{ID: "r1", Description: "Tarifa bancária mensal pacote", CategoryID: strPtr("cat-fees")}}

	out, err := f.svc.CategorizeTransaction(context.Background(), expenseTx("tarifa bancaria"))
	require.NoError(t, err)
	require.False(t, out.Classified(), "accents are letters and survive normalization")

	out, err = f.svc.CategorizeTransaction(context.Background(), expenseTx("TARIFA BANCÁRIA"))
	require.NoError(t, err)
	require.Equal(t, repository.SourceRule, out.Source)
	require.Equal(t, "cat-fees", out.CategoryID)
}

func TestRuleTieBreakPrefersLongestMatch(t *testing.T) {
	t.Parallel()

	rules := []repository.ReconciliationRule{
		{ID: "r1", Description: "uber", CategoryID: strPtr("cat-travel")},
		{ID: "r2", Description: "uber eats", CategoryID: strPtr("cat-meals")},
		{ID: "r3", Description: "eats", CategoryID: strPtr("cat-other")},
	}
	got := matchRule(normalizeText("UBER *EATS 1234"), rules)
	require.NotNil(t, got)
	require.Equal(t, "r2", got.ID)

	equal := []repository.ReconciliationRule{
		{ID: "first", Description: "abc", CategoryID: strPtr("c1")},
		{ID: "second", Description: "abc", CategoryID: strPtr("c2")},
	}
	got = matchRule("abc shop", equal)
	require.Equal(t, "first", got.ID)

	require.Nil(t, matchRule("", rules))
	require.Nil(t, matchRule("padaria", rules))
}

func TestPatternAutoValidationPolicy(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		confidence float64
		occurs     int
		validated  bool
	}{
		{"confident and frequent", 0.9, 5, true},
		{"confident but rare", 0.9, 2, false},
		{"frequent but unsure", 0.8, 10, false},
		{"threshold", 0.85, 3, true},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f := newCategorizerFixture()
			f.patterns.patterns = []repository.TransactionPattern{{
				ID: "p1", NormalizedDescription: "pagamento fornecedor acme", CategoryID: strPtr("cat-suppliers"),
				CostCenterID: strPtr("cc-1"), Confidence: tc.confidence, Occurrences: tc.occurs,
			}}
			out, err := f.svc.CategorizeTransaction(context.Background(), expenseTx("Pagamento Fornecedor ACME"))
			require.NoError(t, err)
			require.Equal(t, repository.SourcePattern, out.Source)
			require.Equal(t, tc.validated, out.Validated)

			c := f.writer.writes["tx-1"]
			require.Equal(t, "cat-suppliers", *c.CategoryID)
			require.Equal(t, "cc-1", *c.CostCenterID)
			if tc.validated {
				require.Equal(t, repository.Validated, c.ValidationStatus)
			} else {
				require.Equal(t, repository.PendingValidation, c.ValidationStatus)
			}
			require.Equal(t, 0.6, f.patterns.minConf)
			require.Equal(t, 20, f.patterns.limit)
			require.Equal(t, 0, f.provider.calls)
		})
	}
}

func TestPatternSimilarityThreshold(t *testing.T) {
	t.Parallel()

	patterns := []repository.TransactionPattern{
		{ID: "weak", NormalizedDescription: "pagamento boleto", Confidence: 0.99},
		{ID: "strong", NormalizedDescription: "pagamento boleto condominio edificio sol", Confidence: 0.7},
	}
	got := matchPattern(normalizeText("PAGAMENTO BOLETO CONDOMINIO EDIFICIO SOL"), patterns)
	require.NotNil(t, got)
	require.Equal(t, "strong", got.ID)

	// 4 shared words out of 5 is exactly 0.8.
	got = matchPattern("pagamento boleto condominio edificio lua", patterns[1:])
	require.NotNil(t, got)
	require.Nil(t, matchPattern("pagamento boleto condominio casa lua", patterns[1:]))
}

func TestAINeverAutoValidates(t *testing.T) {
	t.Parallel()

	f := newCategorizerFixture()
	f.categories.categories = []repository.Category{{ID: "cat-software", Name: "Software"}, {ID: "cat-rent", Name: "Rent"}}
	f.provider.guess = llm.CategoryGuess{CategoryID: "cat-software", Confidence: 1}

	out, err := f.svc.CategorizeTransaction(context.Background(), expenseTx("GITHUB INC"))
	require.NoError(t, err)
	require.Equal(t, repository.SourceAI, out.Source)
	require.False(t, out.Validated)

	c := f.writer.writes["tx-1"]
	require.Equal(t, "cat-software", *c.CategoryID)
	require.Nil(t, c.CostCenterID)
	require.Equal(t, repository.PendingValidation, c.ValidationStatus)

	require.Equal(t, 1, f.provider.calls)
	require.Len(t, f.provider.last.Categories, 2)
	require.Equal(t, "GITHUB INC", f.provider.last.Description)
}

func TestAIRejectsUnofferedCategory(t *testing.T) {
	t.Parallel()

	f := newCategorizerFixture()
	f.categories.categories = []repository.Category{{ID: "cat-rent", Name: "Rent"}}
	f.provider.guess = llm.CategoryGuess{CategoryID: "cat-invented", Confidence: 0.99}

	out, err := f.svc.CategorizeTransaction(context.Background(), expenseTx("SOMETHING"))
	require.NoError(t, err)
	require.False(t, out.Classified())
	require.Empty(t, f.writer.writes)
}

func TestAIFailureLeavesUnclassified(t *testing.T) {
	t.Parallel()

	f := newCategorizerFixture()
	f.categories.categories = []repository.Category{{ID: "cat-rent", Name: "Rent"}}
	f.provider.err = errors.New("gateway timeout")

	out, err := f.svc.CategorizeTransaction(context.Background(), expenseTx("SOMETHING"))
	require.NoError(t, err)
	require.False(t, out.Classified())
	require.Empty(t, f.writer.writes)
}

func TestAISkippedWithoutCandidates(t *testing.T) {
	t.Parallel()

	f := newCategorizerFixture()
	out, err := f.svc.CategorizeTransaction(context.Background(), expenseTx("SOMETHING"))
	require.NoError(t, err)
	require.False(t, out.Classified())
	require.Equal(t, 0, f.provider.calls)
}

func TestNonIncomeExpenseTypesAreSkipped(t *testing.T) {
	t.Parallel()

	for _, typ := range []string{repository.TypeTransfer, repository.TypeInvestment, repository.TypeRedemption} {
		f := newCategorizerFixture()
		tx := expenseTx("anything")
		tx.Type = typ
		out, err := f.svc.CategorizeTransaction(context.Background(), tx)
		require.NoError(t, err)
		require.True(t, out.Skipped)
		require.Equal(t, 0, f.rules.calls)
		require.Equal(t, 0, f.patterns.calls)
		require.Equal(t, 0, f.provider.calls)
	}
}

func TestNormalizeText(t *testing.T) {
	t.Parallel()

	require.Equal(t, "pixenviado joão 123", normalizeText("  PIX-Enviado: JOÃO   #123 "))
	require.Equal(t, "", normalizeText("*** ---"))
	require.Equal(t, 1.0, wordOverlap("a b", "b a a"))
	require.Equal(t, 0.0, wordOverlap("", ""))
}
