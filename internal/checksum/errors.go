package checksum

import "errors"

var (
	ErrNullValue       = errors.New("null is not allowed in canonical JSON")
	ErrNonInteger      = errors.New("only integers are allowed in canonical JSON")
	ErrUnsupportedType = errors.New("unsupported type for canonical JSON")
)
