package provision

import (
	"errors"
	"net/http"
)

// Kind classifies a workflow failure for the transport layer.
type Kind int

const (
	// KindUpstream is any failure of the registry or the fleet API that is not
	// explicitly tolerated by the workflows.
	KindUpstream Kind = iota
	// KindRequest is a malformed or incomplete request, including unresolvable
	// devices and services.
	KindRequest
	// KindNotFound signals that a referenced registry or fleet resource does not
	// exist. The workflows use it to drive idempotent behavior; where it escapes
	// them it is an unexpected failure.
	KindNotFound
	// KindConflict signals presence where absence was expected, i.e. a thing that
	// already exists on create.
	KindConflict
)

// Stable error codes reported in responses.
const (
	CodeNoBody             = "provision.request.no-body"
	CodeBadBody            = "provision.request.bad-body"
	CodeNoHTTP             = "provision.request.no-http"
	CodeBadMethod          = "provision.request.bad-method"
	CodeThingExists        = "provision.thing.already-exists"
	CodeRegistryNotFound   = "registry.resource.not-found"
	CodeRegistryFailure    = "registry.request.failed"
	CodeDeviceNotFound     = "fleet.device.not-found"
	CodeServiceNotFound    = "fleet.service.not-found"
	CodeInvalidCredentials = "fleet.auth.invalid-credentials"
	CodeFleetNotFound      = "fleet.resource.not-found"
	CodeFleetFailure       = "fleet.request.failed"
)

// Error is the closed error type used throughout the provisioning workflows.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	s := e.Code
	if e.Message != "" {
		s += ": " + e.Message
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewRequestError returns a request-shape error with the given stable code.
func NewRequestError(code, message string) *Error {
	return &Error{Kind: KindRequest, Code: code, Message: message}
}

// IsNotFound reports whether err signals a missing resource.
func IsNotFound(err error) bool {
	var perr *Error
	return errors.As(err, &perr) && perr.Kind == KindNotFound
}

// ClassifyStatus performs the single, final mapping from a workflow failure to an
// HTTP status. Request-shape errors and the already-exists conflict are the
// caller's fault; everything else, including a not-found that escaped the
// workflows' tolerance, is an internal error.
func ClassifyStatus(err error) int {
	var perr *Error
	if errors.As(err, &perr) {
		switch perr.Kind {
		case KindRequest, KindConflict:
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}
