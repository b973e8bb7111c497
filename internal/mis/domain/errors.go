package domain

import "errors"

var (
	// ErrUnsupportedTarget indicates an unknown table or table/report combination.
	ErrUnsupportedTarget = errors.New("mis: unsupported table/report")
	// ErrSchemaMismatch indicates raw input with an incompatible shape.
	ErrSchemaMismatch = errors.New("mis: schema mismatch")
	// ErrMappingUnavailable indicates the asset mapping could not be loaded.
	ErrMappingUnavailable = errors.New("mis: asset mapping unavailable")
	// ErrDuplicateKeys indicates a record set that violates composite key uniqueness.
	ErrDuplicateKeys = errors.New("mis: duplicate composite keys")
	// ErrEmptyResponse indicates a remote report returned no content.
	ErrEmptyResponse = errors.New("mis: empty response")
	// ErrNoData indicates every planned batch failed to fetch.
	ErrNoData = errors.New("mis: no data fetched")
)
