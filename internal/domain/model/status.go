package model

import "database/sql/driver"

// PaymentStatus is the reconciled status of a QRIS payment
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
	PaymentStatusExpired   PaymentStatus = "EXPIRED"
)

// Gateway status codes shared by status queries and webhook notifications
const (
	GatewayCodeSuccess = "00"
	GatewayCodePending = "03"
	GatewayCodeExpired = "05"
)

// ResolveStatus maps a raw gateway status code to a PaymentStatus.
// Unknown codes resolve to FAILED, never to success.
func ResolveStatus(code string) PaymentStatus {
	switch code {
	case GatewayCodeSuccess:
		return PaymentStatusCompleted
	case GatewayCodePending:
		return PaymentStatusPending
	case GatewayCodeExpired:
		return PaymentStatusExpired
	default:
		return PaymentStatusFailed
	}
}

// IsTerminal reports whether no further transitions are allowed
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusFailed || s == PaymentStatusExpired
}

func (s PaymentStatus) String() string {
	return string(s)
}

// Scan implements sql.Scanner interface
func (s *PaymentStatus) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		*s = PaymentStatus(v)
	case []byte:
		*s = PaymentStatus(v)
	default:
		*s = PaymentStatusPending
	}
	return nil
}

// Value implements driver.Valuer interface
func (s PaymentStatus) Value() (driver.Value, error) {
	return string(s), nil
}
