package domain

import (
	"errors"
	"fmt"
)

var (
	ErrConfigInvalid    = errors.New("invalid configuration")
	ErrRefreshInFlight  = errors.New("a refresh cycle is already in flight")
	ErrSchedulerStopped = errors.New("scheduler is stopped")
	ErrRateNotFound     = errors.New("rate not found")
	ErrCacheWriteFailed = errors.New("cache write failed")
)

// UpstreamErrorKind classifies a failed call to the price provider.
type UpstreamErrorKind string

const (
	UpstreamAuth        UpstreamErrorKind = "auth"
	UpstreamForbidden   UpstreamErrorKind = "forbidden"
	UpstreamRateLimited UpstreamErrorKind = "rate_limited"
	UpstreamUnavailable UpstreamErrorKind = "unavailable"
	UpstreamDataInvalid UpstreamErrorKind = "data_invalid"
	UpstreamNetwork     UpstreamErrorKind = "network"
	UpstreamGeneric     UpstreamErrorKind = "generic"
)

// UpstreamError is a provider failure with its classification attached.
// StatusCode is zero for network-level failures that got no response.
type UpstreamError struct {
	Kind       UpstreamErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream %s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("upstream %s: %s", e.Kind, e.Message)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// ClassifyStatus maps an HTTP status code from the provider to an error kind.
func ClassifyStatus(statusCode int) UpstreamErrorKind {
	switch {
	case statusCode == 401:
		return UpstreamAuth
	case statusCode == 403:
		return UpstreamForbidden
	case statusCode == 429:
		return UpstreamRateLimited
	case statusCode >= 500:
		return UpstreamUnavailable
	default:
		return UpstreamGeneric
	}
}
