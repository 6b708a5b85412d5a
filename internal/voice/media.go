package voice

import (
	"context"
	"errors"
)

var ErrPermissionDenied = errors.New("microphone permission denied")
var ErrDeviceNotFound = errors.New("no microphone found")
var ErrDeviceBusy = errors.New("microphone in use")

// LocalTrack is a captured microphone source attached to a peer link. A
// disabled track stays attached but sends nothing.
type LocalTrack interface {
	SetEnabled(enabled bool)
	Enabled() bool
	Stop() error
}

// Microphone acquires the local audio source. Acquire may block on a
// permission prompt; ctx bounds the wait.
type Microphone interface {
	Acquire(ctx context.Context) (LocalTrack, error)
}

// Output renders the remote stream. Muting it never touches the peer link.
type Output interface {
	SetMuted(muted bool)
}

type MediaErrorKind int

const (
	MediaOther MediaErrorKind = iota
	MediaDenied
	MediaNotFound
	MediaBusy
)

func (k MediaErrorKind) String() string {
	switch k {
	case MediaDenied:
		return "denied"
	case MediaNotFound:
		return "not_found"
	case MediaBusy:
		return "busy"
	default:
		return "other"
	}
}

type MediaError struct {
	Kind MediaErrorKind
	Err  error
}

func (e *MediaError) Error() string {
	return "acquire microphone (" + e.Kind.String() + "): " + e.Err.Error()
}

func (e *MediaError) Unwrap() error { return e.Err }

// Message is the user-facing text for the failure.
func (e *MediaError) Message() string {
	switch e.Kind {
	case MediaDenied:
		return "Microphone access was denied. Allow microphone access and try again."
	case MediaNotFound:
		return "No microphone was found. Connect one and try again."
	case MediaBusy:
		return "The microphone is being used by another application."
	default:
		return "Could not start the microphone."
	}
}

// ClassifyMediaError wraps err with its category. A nil err stays nil.
func ClassifyMediaError(err error) *MediaError {
	if err == nil {
		return nil
	}
	var me *MediaError
	if errors.As(err, &me) {
		return me
	}
	kind := MediaOther
	switch {
	case errors.Is(err, ErrPermissionDenied):
		kind = MediaDenied
	case errors.Is(err, ErrDeviceNotFound):
		kind = MediaNotFound
	case errors.Is(err, ErrDeviceBusy):
		kind = MediaBusy
	}
	return &MediaError{Kind: kind, Err: err}
}
