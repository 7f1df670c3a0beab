package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrRender       = errors.New("template render failed")
	ErrConversion   = errors.New("document conversion failed")
	ErrComposition  = errors.New("signature composition failed")
	ErrSigning      = errors.New("signing failed")
	ErrConflict     = errors.New("concurrent modification")
	ErrTemporary    = errors.New("temporary failure")
)

var (
	ErrRoleNotRequired = fmt.Errorf("%w: role is not required for this document", ErrSigning)
	ErrAlreadySigned   = fmt.Errorf("%w: role has already signed", ErrSigning)
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// NotFoundError reports a lookup miss for an entity with its identifier.
func NotFoundError(entity, id string) error {
	return fmt.Errorf("%s %q: %w", entity, id, ErrNotFound)
}
