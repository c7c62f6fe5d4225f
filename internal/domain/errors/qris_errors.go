package errors

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrPaymentNotFound indicates that no payment matches the reference or qr id
	ErrPaymentNotFound = errors.New("payment not found")

	// ErrInvalidAmount indicates a non-positive payment amount
	ErrInvalidAmount = errors.New("amount must be greater than zero")

	// ErrMissingReference indicates an empty caller reference
	ErrMissingReference = errors.New("reference is required")

	// ErrMissingPaymentIdentifier indicates a webhook without qrId or originalReferenceNo
	ErrMissingPaymentIdentifier = errors.New("missing qrId")

	// ErrInvalidWebhookPayload indicates a webhook body that is not a JSON notification
	ErrInvalidWebhookPayload = errors.New("invalid webhook payload")

	// ErrInvalidWebhookSignature indicates that a webhook failed signature verification
	ErrInvalidWebhookSignature = errors.New("invalid webhook signature")

	// ErrUnsupportedEncoding indicates a signature encoding other than hex or base64
	ErrUnsupportedEncoding = errors.New("unsupported signature encoding")
)

// AuthFailureError is returned when the token exchange fails. Every caller that
// waited on the same refresh receives the same value.
type AuthFailureError struct {
	Profile string
	Cause   error
}

func (e *AuthFailureError) Error() string {
	return fmt.Sprintf("AUTH_FAILURE: token exchange with %s gateway failed: %v", e.Profile, e.Cause)
}

func (e *AuthFailureError) Unwrap() error {
	return e.Cause
}

// TransportError is a network-level failure or timeout talking to the gateway.
// It is retryable by the caller and never retried inside the service.
type TransportError struct {
	Method string
	URL    string
	Cause  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("TRANSPORT_ERROR: %s %s: %v", e.Method, e.URL, e.Cause)
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// GatewayError is a non-2xx or malformed response from the payment API
type GatewayError struct {
	Operation   string
	HTTPStatus  int
	GatewayCode string
	Message     string
	Body        string
}

func (e *GatewayError) Error() string {
	if e.GatewayCode != "" {
		return fmt.Sprintf("GATEWAY_ERROR: %s returned HTTP %d (code %s): %s", e.Operation, e.HTTPStatus, e.GatewayCode, e.Message)
	}
	return fmt.Sprintf("GATEWAY_ERROR: %s returned HTTP %d: %s", e.Operation, e.HTTPStatus, e.Message)
}

// DuplicateReferenceError is returned before any gateway call when the reference already exists
type DuplicateReferenceError struct {
	Reference string
}

func (e *DuplicateReferenceError) Error() string {
	return fmt.Sprintf("DUPLICATE_REFERENCE: reference %q already exists", e.Reference)
}

// TimeoutError is returned when polling exhausts its attempts. The payment stays PENDING.
type TimeoutError struct {
	QrID     string
	Attempts int
	Elapsed  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("TIMEOUT: payment %s still pending after %d attempts (%s)", e.QrID, e.Attempts, e.Elapsed.Round(time.Millisecond))
}

// ReconciliationConflictError describes a COMPLETED claim without a settlement id.
// It is logged and the transition is withheld.
type ReconciliationConflictError struct {
	QrID    string
	Source  string
	RawCode string
}

func (e *ReconciliationConflictError) Error() string {
	return fmt.Sprintf("RECONCILIATION_CONFLICT: %s event for %s reported code %s without a transaction id", e.Source, e.QrID, e.RawCode)
}

// IsAuthFailure reports whether err is or wraps an AuthFailureError
func IsAuthFailure(err error) bool {
	var target *AuthFailureError
	return errors.As(err, &target)
}

// IsDuplicateReference reports whether err is or wraps a DuplicateReferenceError
func IsDuplicateReference(err error) bool {
	var target *DuplicateReferenceError
	return errors.As(err, &target)
}

// IsTimeout reports whether err is or wraps a TimeoutError
func IsTimeout(err error) bool {
	var target *TimeoutError
	return errors.As(err, &target)
}
