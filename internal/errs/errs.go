// Package errs defines the sentinel error kinds used across the monitor
// service. Call sites wrap one of these with fmt.Errorf("...: %w", Kind)
// so callers can still test the kind with errors.Is.
package errs

import "errors"

var (
	TransportTimeout         = errors.New("transport timeout")
	TransportRefused         = errors.New("transport refused")
	TransportOther           = errors.New("transport error")
	ValidationMissingKeyword = errors.New("missing required keyword")
	ValidationForbiddenKeyword = errors.New("forbidden keyword present")
	HTTPStatusError          = errors.New("unexpected http status")
	TLSError                 = errors.New("tls error")
	TLSExpiringSoon          = errors.New("tls certificate expiring soon")
	ConfigInvalid            = errors.New("invalid configuration")
	PersistenceError         = errors.New("persistence error")
	NotificationTransportError = errors.New("notification transport error")
	PolicyDenied             = errors.New("policy denied")
)
