package jsonfile

import "errors"

// ErrMalformedFile indicates a data file that is not valid JSON of the expected shape.
var ErrMalformedFile = errors.New("malformed data file")
