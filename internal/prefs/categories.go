package prefs

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/jask/finsync/internal/database"
	"github.com/jask/finsync/internal/database/repository"
)

// LoadCategories reads a JSON list of {"name","type"} category definitions.
// Names are trimmed; duplicates (same type and name) are dropped.
func LoadCategories(path string) ([]database.CategoryDef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw []database.CategoryDef
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	seen := map[string]bool{}
	out := make([]database.CategoryDef, 0, len(raw))
	for i, c := range raw {
		c.Name = strings.TrimSpace(c.Name)
		c.Type = strings.ToLower(strings.TrimSpace(c.Type))
		if c.Name == "" {
			return nil, fmt.Errorf("category %d: name required", i)
		}
		switch c.Type {
		case repository.TypeIncome, repository.TypeExpense, repository.TypeTransfer,
			repository.TypeInvestment, repository.TypeRedemption:
		default:
			return nil, fmt.Errorf("category %q: unknown type %q", c.Name, c.Type)
		}
		key := c.Type + "\x00" + strings.ToLower(c.Name)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out, nil
}
