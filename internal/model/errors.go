package model

import "errors"

var (
	ErrInvalidParameter     = errors.New("invalid parameter")
	ErrNumericalInstability = errors.New("numerical instability")
)

const (
	KindInvalidParameter     = "invalid_parameter"
	KindNumericalInstability = "numerical_instability"
	KindInternal             = "internal"
)

// ErrorKind classifies err for failed leaderboard rows.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidParameter):
		return KindInvalidParameter
	case errors.Is(err, ErrNumericalInstability):
		return KindNumericalInstability
	default:
		return KindInternal
	}
}
