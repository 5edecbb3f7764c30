package auth

import (
	"github.com/csfam/pawprint/internal/common/apperrors"
)

var (
	ErrAuth              apperrors.Error = apperrors.New("authentication error")
	ErrIncompatibleAPI   apperrors.Error = ErrAuth.New("incompatible RPC API version")
	ErrInvalidConstraint apperrors.Error = ErrAuth.New("invalid API version constraint")
	ErrInvalidDuration   apperrors.Error = ErrAuth.New("token duration must be positive")
)
