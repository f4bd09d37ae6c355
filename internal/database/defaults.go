package database

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/jask/finsync/internal/database/repository"
)

// CategoryDef names one category to seed.
type CategoryDef struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

var defaultCategories = []CategoryDef{
	{"Sales revenue", repository.TypeIncome},
	{"Service revenue", repository.TypeIncome},
	{"Interest and yields", repository.TypeIncome},
	{"Other income", repository.TypeIncome},
	{"Payroll", repository.TypeExpense},
	{"Rent", repository.TypeExpense},
	{"Utilities", repository.TypeExpense},
	{"Software and subscriptions", repository.TypeExpense},
	{"Bank fees", repository.TypeExpense},
	{"Taxes", repository.TypeExpense},
	{"Suppliers", repository.TypeExpense},
	{"Travel", repository.TypeExpense},
	{"Other expenses", repository.TypeExpense},
}

// SeedCategories ensures categories exist for an organization, using the
// built-in list when defs is empty. Ids are derived from the organization,
// type and name, so it is idempotent and safe to run repeatedly.
func SeedCategories(ctx context.Context, db *sql.DB, organizationID string, defs ...CategoryDef) (int, error) {
	if len(defs) == 0 {
		defs = defaultCategories
	}
	catRepo := repository.NewCategoryRepo(db)
	for _, c := range defs {
		id := uuid.NewSHA1(uuid.NameSpaceOID, []byte("cat:"+organizationID+":"+c.Type+":"+c.Name)).String()
		cat := repository.Category{ID: id, OrganizationID: organizationID, Name: c.Name, Type: c.Type, IsActive: true}
		if err := catRepo.Upsert(ctx, cat); err != nil {
			return 0, err
		}
	}
	return len(defs), nil
}
