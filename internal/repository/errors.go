package repository

import (
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"
)

var (
	ErrNotFound             = errors.New("record not found")
	ErrDatabase             = errors.New("database error")
	ErrDuplicateOrderNumber = errors.New("order number already exists")
	ErrStatusConflict       = errors.New("order status changed concurrently")
	ErrInvalidReference     = errors.New("referenced record does not exist")
	ErrInUse                = errors.New("record is still referenced")
)

const orderNumberConstraint = "orders_order_number_key"

// pgCode returns the SQLSTATE and constraint name of a Postgres error
func pgCode(err error) (code, constraint string) {
	var pqErr *pq.Error

	if errors.As(err, &pqErr) {
		return string(pqErr.Code), pqErr.Constraint
	}
	return "", ""
}

func isUniqueViolation(err error, constraint string) bool {
	code, c := pgCode(err)
	return code == pgerrcode.UniqueViolation && (constraint == "" || c == constraint)
}

func isForeignKeyViolation(err error) bool {
	code, _ := pgCode(err)
	return code == pgerrcode.ForeignKeyViolation
}
