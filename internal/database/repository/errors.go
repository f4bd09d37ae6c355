package repository

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

// ErrDuplicate is returned by inserts that hit a unique constraint.
var ErrDuplicate = errors.New("repository: duplicate row")

// wrapInsert converts unique-constraint violations into ErrDuplicate.
func wrapInsert(err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) &&
		(sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey) {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}

// scanner handles both Row and Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}
