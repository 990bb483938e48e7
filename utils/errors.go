package utils

import (
	"github.com/pkg/errors"
)

var (
	// ErrInputMismatch is returned when sizes or indices across keypoints, matches and masks
	// are inconsistent.
	ErrInputMismatch = errors.New("input mismatch")
	// ErrInsufficientData is returned when fewer than the minimum number of points required by
	// an estimator are available.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrDegenerateGeometry is returned when a solve cannot produce a usable result.
	ErrDegenerateGeometry = errors.New("degenerate geometry")
)

// NewInputMismatchError is used when two collections that must agree in size or indexing do not.
func NewInputMismatchError(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInputMismatch, format, args...)
}

// NewInsufficientDataError is used when an estimator is given fewer than `need` elements.
func NewInsufficientDataError(what string, have, need int) error {
	return errors.Wrapf(ErrInsufficientData, "%s: have %d, need at least %d", what, have, need)
}

// NewDegenerateGeometryError is used when a pose or model solve does not produce a valid result.
func NewDegenerateGeometryError(format string, args ...interface{}) error {
	return errors.Wrapf(ErrDegenerateGeometry, format, args...)
}
