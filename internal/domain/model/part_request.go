package model

import (
	"strings"
	"time"

	"telegram-parts-broker/internal/domain"

	"github.com/oklog/ulid/v2"
)

type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestAnswered  RequestStatus = "answered"
	RequestCancelled RequestStatus = "cancelled"
)

type RequestSource string

const (
	SourceDialogue RequestSource = "dialogue"
	SourceMiniApp  RequestSource = "miniapp"
)

// PartRequest is one buyer-submitted request.
type PartRequest struct {
	ID            string        `json:"id"`
	BuyerID       int64         `json:"buyer_id"`
	BuyerUsername string        `json:"buyer_username,omitempty"`
	Brand         string        `json:"brand"`
	Model         string        `json:"model,omitempty"`
	Year          string        `json:"year,omitempty"`
	Category      string        `json:"category,omitempty"`
	Subcategory   string        `json:"subcategory,omitempty"`
	Description   string        `json:"description,omitempty"`
	Source        RequestSource `json:"source"`
	Status        RequestStatus `json:"status"`

	// NotifiedSellers are the platform addresses the request was delivered to.
	NotifiedSellers []int64 `json:"notified_sellers,omitempty"`
	Answers         int     `json:"answers"`

	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	AnsweredAt *time.Time `json:"answered_at,omitempty"`
}

// NewPartRequest builds a pending request. Brand and buyer are mandatory.
func NewPartRequest(buyerID int64, brand string, source RequestSource) (*PartRequest, error) {
	if buyerID == 0 || strings.TrimSpace(brand) == "" {
		return nil, domain.ErrInvalidArgument
	}
	return &PartRequest{
		ID:        ulid.Make().String(),
		BuyerID:   buyerID,
		Brand:     strings.TrimSpace(brand),
		Source:    source,
		Status:    RequestPending,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// MarkAnswered records a seller answer. Only the first answer changes the status.
func (r *PartRequest) MarkAnswered(at time.Time) {
	r.Answers++
	if r.Status != RequestPending {
		return
	}
	r.Status = RequestAnswered
	r.AnsweredAt = &at
}

func (r *PartRequest) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

// WasNotified reports whether tgID received this request.
func (r *PartRequest) WasNotified(tgID int64) bool {
	for _, id := range r.NotifiedSellers {
		if id == tgID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (r *PartRequest) Clone() *PartRequest {
	if r == nil {
		return nil
	}
	cp := *r
	if r.NotifiedSellers != nil {
		cp.NotifiedSellers = append([]int64(nil), r.NotifiedSellers...)
	}
	if r.AnsweredAt != nil {
		at := *r.AnsweredAt
		cp.AnsweredAt = &at
	}
	return &cp
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}

// Field accessors used when formatting notifications.
func (r *PartRequest) ModelOrNA() string       { return orNA(r.Model) }
func (r *PartRequest) YearOrNA() string        { return orNA(r.Year) }
func (r *PartRequest) CategoryOrNA() string    { return orNA(r.Category) }
func (r *PartRequest) SubcategoryOrNA() string { return orNA(r.Subcategory) }
func (r *PartRequest) DescriptionOrNA() string { return orNA(r.Description) }
