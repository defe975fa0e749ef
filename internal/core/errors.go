package core

import "errors"

// UndefinedAddress marks an address field that points nowhere.
const UndefinedAddress = ^uint64(0)

// Decoding errors.
var (
	// ErrFormat reports bytes that are not valid HDF5 metadata.
	ErrFormat = errors.New("invalid HDF5 format")

	// ErrUnsupportedFeature reports valid HDF5 metadata that this codec
	// does not handle (v1 object headers, dense link storage, chunked layout).
	ErrUnsupportedFeature = errors.New("unsupported HDF5 feature")
)
