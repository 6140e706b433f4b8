package download

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrAgeRestricted     = errors.New("age restricted")
	ErrUpstreamTimeout   = errors.New("upstream timeout")
	ErrUpstreamFailure   = errors.New("upstream failure")
	ErrTranscodeFailure  = errors.New("transcode failure")
	ErrValidationFailure = errors.New("validation failure")
)

// DownloadError describes a failed fetch. Kind is one of the package sentinels.
type DownloadError struct {
	TrackID string
	Kind    error
	Err     error
}

func (e *DownloadError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("download %s: %v", e.TrackID, e.Kind)
	}
	return fmt.Sprintf("download %s: %v: %v", e.TrackID, e.Kind, e.Err)
}

func (e *DownloadError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// ageRestrictionMarkers are lower-cased fragments of upstream messages for content that needs a
// signed-in, age-verified account.
var ageRestrictionMarkers = []string{
	"sign in to confirm your age",
	"confirm your age",
	"age-restricted",
	"age restricted",
	"inappropriate for some users",
	"age verification",
}

// IsAgeRestricted reports whether an upstream message marks the content as age restricted.
func IsAgeRestricted(msg string) bool {
	msg = strings.ToLower(msg)
	for _, m := range ageRestrictionMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// classify wraps an extractor error with its kind.
func classify(trackID string, err error) *DownloadError {
	switch {
	case IsAgeRestricted(err.Error()):
		return &DownloadError{TrackID: trackID, Kind: ErrAgeRestricted, Err: err}
	case errors.Is(err, context.DeadlineExceeded), strings.Contains(strings.ToLower(err.Error()), "timed out"):
		return &DownloadError{TrackID: trackID, Kind: ErrUpstreamTimeout, Err: err}
	default:
		return &DownloadError{TrackID: trackID, Kind: ErrUpstreamFailure, Err: err}
	}
}
