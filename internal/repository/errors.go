package repository

import (
	"errors"

	"github.com/lib/pq"
)

var (
	// ErrDuplicateGroupName is returned when an active group in the same org already uses the name.
	ErrDuplicateGroupName = errors.New("screen group name already in use")
	// ErrGroupNotEmpty is returned when deleting a group with members without force.
	ErrGroupNotEmpty = errors.New("screen group has members")
)

const pqUniqueViolation = pq.ErrorCode("23505")

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}
