package shared

import (
	"fmt"
	"strconv"
)

// ParseID parses a positive base-10 identifier from a URL parameter.
func ParseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid id %q", ErrValidation, raw)
	}
	return id, nil
}

// Pagination captures limit/offset with sane bounds for list endpoints.
type Pagination struct {
	Limit  int
	Offset int
}

// NormalizePagination clamps limit/offset to usable values.
func NormalizePagination(limit, offset int) Pagination {
	if limit <= 0 {
		limit = 20
	}
	if limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}
	return Pagination{Limit: limit, Offset: offset}
}
