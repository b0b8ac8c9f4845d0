package entity

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindDataIntegrity   ErrorKind = "data_integrity"
	KindMissingResource ErrorKind = "missing_resource"
	KindConfiguration   ErrorKind = "configuration"
)

var (
	ErrDataIntegrity   = errors.New("data integrity violation")
	ErrMissingResource = errors.New("missing resource")
	ErrConfiguration   = errors.New("invalid configuration")
)

// ItemError describes why a single video (or chunk) could not be processed by
// a stage. Configuration errors carry no video id and abort the whole run.
type ItemError struct {
	Kind    ErrorKind
	Stage   string
	VideoID string
	Err     error
}

func (e *ItemError) Error() string {
	if e.VideoID == "" {
		return fmt.Sprintf("%s: %s: %v", e.Stage, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: video %s: %v", e.Stage, e.Kind, e.VideoID, e.Err)
}

func (e *ItemError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind.
func (e *ItemError) Is(target error) bool {
	switch e.Kind {
	case KindDataIntegrity:
		return target == ErrDataIntegrity
	case KindMissingResource:
		return target == ErrMissingResource
	case KindConfiguration:
		return target == ErrConfiguration
	}
	return false
}

func NewDataIntegrityError(stage, videoID string, err error) *ItemError {
	return &ItemError{Kind: KindDataIntegrity, Stage: stage, VideoID: videoID, Err: err}
}

func NewMissingResourceError(stage, videoID string, err error) *ItemError {
	return &ItemError{Kind: KindMissingResource, Stage: stage, VideoID: videoID, Err: err}
}

func NewConfigurationError(err error) *ItemError {
	return &ItemError{Kind: KindConfiguration, Stage: "config", Err: err}
}
