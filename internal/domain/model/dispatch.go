package model

// Actor is the platform identity of whoever sent an inbound event.
type Actor struct {
	TelegramID int64
	Username   string
	FirstName  string
}

// DeliveryFailure is one seller that could not be notified.
type DeliveryFailure struct {
	SellerID string
	Reason   string
}

// DispatchReport summarises a fan-out to matching sellers.
type DispatchReport struct {
	RequestID        string            `json:"request_id"`
	Brand            string            `json:"brand"`
	Matched          int               `json:"matched"`
	SkippedNoContact int               `json:"skipped_no_contact"`
	Delivered        int               `json:"delivered"`
	Failed           int               `json:"failed"`
	Failures         []DeliveryFailure `json:"failures,omitempty"`
}

type RelayKind string

const (
	RelayUnavailable RelayKind = "unavailable"
	RelayQuote       RelayKind = "quote"
)

// RelayRecord is one seller answer forwarded (or not) to a buyer.
type RelayRecord struct {
	RequestID  string
	BuyerID    int64
	SellerTgID int64
	Kind       RelayKind
	Price      float64
	Delivered  bool
}
