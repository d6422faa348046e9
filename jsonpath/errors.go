package jsonpath

import "errors"

// ErrInvalidPath is returned when path addresses through a scalar value,
// e.g. reading "a.b" out of {"a": 1}.
var ErrInvalidPath = errors.New("jsonpath: path addresses through a scalar")
