package model

import (
	"encoding/json"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// SellerContact holds the addresses a seller can be notified at.
type SellerContact struct {
	TelegramID int64
	Phone      string
}

// Seller is one roster entry. Sellers are loaded once and never mutated by the bot.
type Seller struct {
	ID      string
	Name    string
	Brands  []string
	Contact SellerContact
}

// Reachable reports whether the seller has a messaging address.
func (s *Seller) Reachable() bool { return s != nil && s.Contact.TelegramID != 0 }

// Handles reports whether brand is in the seller's brand set (case-insensitive).
func (s *Seller) Handles(brand string) bool {
	b := NormalizeBrand(brand)
	if b == "" {
		return false
	}
	for _, own := range s.Brands {
		if NormalizeBrand(own) == b {
			return true
		}
	}
	return false
}

// DisplayName falls back to the seller id when no name is set.
func (s *Seller) DisplayName() string {
	if strings.TrimSpace(s.Name) != "" {
		return s.Name
	}
	return s.ID
}

func NormalizeBrand(b string) string { return strings.ToLower(strings.TrimSpace(b)) }

// FlexID decodes identifiers that rosters and payloads write either as numbers or strings.
type FlexID string

func (f *FlexID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = FlexID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexID(n.String())
	return nil
}

func (f *FlexID) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return &yaml.TypeError{Errors: []string{"identifier must be a scalar"}}
	}
	*f = FlexID(strings.TrimSpace(node.Value))
	return nil
}

func (f FlexID) String() string { return string(f) }

// Int64 parses the identifier as a platform address.
func (f FlexID) Int64() (int64, bool) {
	if f == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(string(f), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// SellerRecord is the on-disk shape of a roster entry.
// Both telegram_id and telegramId keys are accepted.
type SellerRecord struct {
	ID      FlexID   `json:"id" yaml:"id"`
	Name    string   `json:"name" yaml:"name"`
	Brands  []string `json:"brands" yaml:"brands"`
	Contact *struct {
		TelegramID    FlexID `json:"telegram_id" yaml:"telegram_id"`
		TelegramIDAlt FlexID `json:"telegramId" yaml:"telegramId"`
		Phone         string `json:"phone" yaml:"phone"`
	} `json:"contact" yaml:"contact"`
}

// ToSeller validates the record. Records without an id or without any brand are
// rejected; a missing contact is allowed and makes the seller unreachable.
func (r SellerRecord) ToSeller() (*Seller, bool) {
	if r.ID == "" {
		return nil, false
	}
	brands := make([]string, 0, len(r.Brands))
	for _, b := range r.Brands {
		if strings.TrimSpace(b) != "" {
			brands = append(brands, strings.TrimSpace(b))
		}
	}
	if len(brands) == 0 {
		return nil, false
	}
	s := &Seller{ID: r.ID.String(), Name: strings.TrimSpace(r.Name), Brands: brands}
	if r.Contact != nil {
		raw := r.Contact.TelegramID
		if raw == "" {
			raw = r.Contact.TelegramIDAlt
		}
		if id, ok := raw.Int64(); ok {
			s.Contact.TelegramID = id
		}
		s.Contact.Phone = r.Contact.Phone
	}
	return s, true
}
