package errors

import (
	"errors"
	"fmt"
)

// TransientError marks a delivery failure worth retrying: network timeouts,
// provider 5xx responses, throttling.
type TransientError struct {
	ProviderCode string
	Err          error
}

func (e *TransientError) Error() string {
	if e.ProviderCode != "" {
		return fmt.Sprintf("transient delivery failure (%s): %v", e.ProviderCode, e.Err)
	}
	return fmt.Sprintf("transient delivery failure: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks a delivery failure that will not change on retry:
// invalid destination, bounced address, opted-out number.
type PermanentError struct {
	ProviderCode string
	Bounced      bool
	Err          error
}

func (e *PermanentError) Error() string {
	if e.ProviderCode != "" {
		return fmt.Sprintf("permanent delivery failure (%s): %v", e.ProviderCode, e.Err)
	}
	return fmt.Sprintf("permanent delivery failure: %v", e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

func NewTransient(providerCode string, err error) *TransientError {
	return &TransientError{ProviderCode: providerCode, Err: err}
}

func NewPermanent(providerCode string, err error) *PermanentError {
	return &PermanentError{ProviderCode: providerCode, Err: err}
}

func NewBounce(providerCode string, err error) *PermanentError {
	return &PermanentError{ProviderCode: providerCode, Bounced: true, Err: err}
}

func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

func IsBounce(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe) && pe.Bounced
}

// ProviderCode extracts the provider-native error code for metrics labels.
// Unclassified errors report "unknown".
func ProviderCode(err error) string {
	var te *TransientError
	if errors.As(err, &te) && te.ProviderCode != "" {
		return te.ProviderCode
	}
	var pe *PermanentError
	if errors.As(err, &pe) && pe.ProviderCode != "" {
		return pe.ProviderCode
	}
	return "unknown"
}
