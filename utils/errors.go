package utils

import (
	"github.com/pkg/errors"
)

// NewDimensionError is used when matrices or vectors do not conform.
func NewDimensionError(what string, wantRows, wantCols, gotRows, gotCols int) error {
	return errors.Errorf("%s has dimensions %dx%d, expected %dx%d", what, gotRows, gotCols, wantRows, wantCols)
}
