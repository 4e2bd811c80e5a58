package tracker

import (
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"

	"github.com/digitaldrywood/timesheet/internal/config"
	"github.com/digitaldrywood/timesheet/internal/google"
)

var (
	// ErrSaveFailure wraps every failure of an explicit Save.
	ErrSaveFailure = errors.New("save failed")
	// ErrNotReady is returned when the sync core has not finished starting
	// or has stopped on a fatal error.
	ErrNotReady      = errors.New("sync core not ready")
	ErrInvalidPeriod = errors.New("invalid period")
)

// Kind classifies failures for the error-handling policy.
type Kind int

const (
	KindNone Kind = iota
	// KindConfiguration: credentials unset or placeholders. Fatal.
	KindConfiguration
	// KindAccessRestricted: the service rejects a well-formed credential. Fatal for the session.
	KindAccessRestricted
	// KindAuth: no token or consent refused. Recoverable by signing in.
	KindAuth
	// KindTransient: anything else.
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindConfiguration:
		return "configuration"
	case KindAccessRestricted:
		return "access_restricted"
	case KindAuth:
		return "auth"
	default:
		return "transient"
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	for kind := KindNone; kind <= KindTransient; kind++ {
		if kind.String() == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown error kind %q", text)
}

// Classify maps an error from any collaborator to its Kind.
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}
	if errors.Is(err, config.ErrConfiguration) {
		return KindConfiguration
	}
	if errors.Is(err, google.ErrNoToken) || errors.Is(err, google.ErrAuthDenied) {
		return KindAuth
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusUnauthorized:
			return KindAuth
		case http.StatusForbidden:
			return KindAccessRestricted
		}
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return KindAuth
	}
	return KindTransient
}

// InitError is the terminal startup failure shown on the error screen.
type InitError struct {
	Kind Kind
	Err  error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("initialization failed (%s): %v", e.Kind, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// Guidance is the remediation text shown with the error.
func (e *InitError) Guidance() string {
	switch e.Kind {
	case KindConfiguration:
		return "OAuth client credentials or spreadsheet id are not configured. Set them and restart."
	case KindAccessRestricted:
		return "The Google credential is restricted. In Google Cloud Console > Credentials, allow the Google Sheets API for this key or client, then restart."
	default:
		return "Restart the application to try again."
	}
}

func newInitError(err error) *InitError {
	kind := Classify(err)
	if kind != KindConfiguration && kind != KindAccessRestricted {
		kind = KindTransient
	}
	return &InitError{Kind: kind, Err: err}
}
