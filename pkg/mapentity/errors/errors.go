package errors

import (
	"fmt"
)

var ErrUnknownKind = fmt.Errorf("unknown kind")
var ErrDuplicateKind = fmt.Errorf("duplicate kind")
var ErrInvalidSchema = fmt.Errorf("invalid schema")
var ErrTypeMismatch = fmt.Errorf("type mismatch")
var ErrUnknownAttribute = fmt.Errorf("unknown attribute")
var ErrPermissionDenied = fmt.Errorf("permission denied")
var ErrUnsupportedFormat = fmt.Errorf("unsupported format")
var ErrMixedGeometryTypes = fmt.Errorf("mixed geometry types")
var ErrRendering = fmt.Errorf("rendering failed")
var ErrInvalidRequest = fmt.Errorf("invalid request")
var ErrNotFound = fmt.Errorf("not found")
var ErrAlreadyExists = fmt.Errorf("already exists")
var ErrInternal = fmt.Errorf("internal error")

type kindError struct {
	msg    string
	target error
}

func (k kindError) Error() string        { return k.msg }
func (k kindError) Is(target error) bool { return target == k.target }

func NewUnknownKindError(kind string) error {
	return &kindError{
		msg:    fmt.Sprintf("kind %q is not registered", kind),
		target: ErrUnknownKind,
	}
}

func NewDuplicateKindError(kind string) error {
	return &kindError{
		msg:    fmt.Sprintf("kind %q is already registered", kind),
		target: ErrDuplicateKind,
	}
}

func NewInvalidSchemaError(msg string) error {
	return &kindError{
		msg:    msg,
		target: ErrInvalidSchema,
	}
}

func NewTypeMismatchError(msg string) error {
	return &kindError{
		msg:    msg,
		target: ErrTypeMismatch,
	}
}

func NewUnknownAttributeError(msg string) error {
	return &kindError{
		msg:    msg,
		target: ErrUnknownAttribute,
	}
}

func NewPermissionDeniedError(msg string) error {
	return &kindError{
		msg:    msg,
		target: ErrPermissionDenied,
	}
}

func NewUnsupportedFormatError(format string) error {
	return &kindError{
		msg:    fmt.Sprintf("format %q is not supported", format),
		target: ErrUnsupportedFormat,
	}
}

func NewMixedGeometryTypesError(msg string) error {
	return &kindError{
		msg:    msg,
		target: ErrMixedGeometryTypes,
	}
}

func NewRenderingError(msg string) error {
	return &kindError{
		msg:    msg,
		target: ErrRendering,
	}
}

func NewInvalidRequestError(msg string) error {
	return &kindError{
		msg:    msg,
		target: ErrInvalidRequest,
	}
}

func NewNotFoundError(msg string) error {
	return &kindError{
		msg:    msg,
		target: ErrNotFound,
	}
}

func NewAlreadyExistsError(msg string) error {
	return &kindError{
		msg:    msg,
		target: ErrAlreadyExists,
	}
}

func NewInternalError(msg string) error {
	return &kindError{
		msg:    msg,
		target: ErrInternal,
	}
}
