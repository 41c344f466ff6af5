package domain

import "errors"

var (
	// ErrInvalidArgument marks caller input that is rejected before any network access.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrRetrieval marks a remote resource that could not be fetched.
	ErrRetrieval = errors.New("retrieval failed")

	// ErrParse marks a resource whose layout does not match expectations.
	ErrParse = errors.New("parse failed")

	// ErrNotFound marks a remote resource that does not exist (HTTP 404).
	// It is always wrapped together with ErrRetrieval.
	ErrNotFound = errors.New("not found")

	// ErrNoArchive marks a station without a published archive for a phase.
	ErrNoArchive = errors.New("no archive published")

	// ErrNoData marks a run in which no station contributed any value.
	ErrNoData = errors.New("no data")
)
