//go:build !integration

package model

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"telegram-parts-broker/internal/domain"
)

// --- Seller Tests ---

func TestSellerHandles(t *testing.T) {
	s := &Seller{ID: "1", Brands: []string{"Toyota", " BMW "}}

	cases := []struct {
		brand string
		want  bool
	}{
		{"Toyota", true},
		{"toyota", true},
		{"  TOYOTA ", true},
		{"bmw", true},
		{"Honda", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := s.Handles(tc.brand); got != tc.want {
			t.Errorf("Handles(%q) = %v, want %v", tc.brand, got, tc.want)
		}
	}
}

func TestSellerRecord(t *testing.T) {
	t.Run("should accept numeric and string ids in either contact key", func(t *testing.T) {
		var recs []SellerRecord
		raw := `[
			{"id": 1, "name": "A", "brands": ["Toyota"], "contact": {"telegramId": 100}},
			{"id": "s-2", "brands": ["BMW"], "contact": {"telegram_id": "200", "phone": "+971"}}
		]`
		if err := json.Unmarshal([]byte(raw), &recs); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		a, ok := recs[0].ToSeller()
		if !ok || a.ID != "1" || a.Contact.TelegramID != 100 {
			t.Errorf("unexpected first seller %+v", a)
		}
		b, ok := recs[1].ToSeller()
		if !ok || b.ID != "s-2" || b.Contact.TelegramID != 200 || b.Contact.Phone != "+971" {
			t.Errorf("unexpected second seller %+v", b)
		}
		if b.DisplayName() != "s-2" {
			t.Errorf("display name should fall back to id, got %q", b.DisplayName())
		}
	})

	t.Run("should decode yaml records", func(t *testing.T) {
		var rec SellerRecord
		if err := yaml.Unmarshal([]byte("id: 7\nbrands: [Nissan]\ncontact:\n  telegram_id: 700\n"), &rec); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		s, ok := rec.ToSeller()
		if !ok || s.ID != "7" || !s.Reachable() {
			t.Errorf("unexpected seller %+v", s)
		}
	})

	t.Run("should reject records without id or brands", func(t *testing.T) {
		if _, ok := (SellerRecord{Brands: []string{"Toyota"}}).ToSeller(); ok {
			t.Error("record without id accepted")
		}
		if _, ok := (SellerRecord{ID: "1", Brands: []string{" "}}).ToSeller(); ok {
			t.Error("record without brands accepted")
		}
	})

	t.Run("should keep sellers without contact but unreachable", func(t *testing.T) {
		s, ok := (SellerRecord{ID: "1", Brands: []string{"Toyota"}}).ToSeller()
		if !ok || s.Reachable() {
			t.Errorf("unexpected %+v %v", s, ok)
		}
	})
}

// --- PartRequest Tests ---

func TestNewPartRequest(t *testing.T) {
	t.Run("should create a pending request", func(t *testing.T) {
		req, err := NewPartRequest(7, " Toyota ", SourceMiniApp)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if req.ID == "" || req.Brand != "Toyota" || req.Status != RequestPending {
			t.Errorf("unexpected request %+v", req)
		}
		if req.ModelOrNA() != "N/A" || req.DescriptionOrNA() != "N/A" {
			t.Error("empty optional fields should render as N/A")
		}
	})

	t.Run("should reject missing buyer or brand", func(t *testing.T) {
		if _, err := NewPartRequest(0, "Toyota", SourceDialogue); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
		if _, err := NewPartRequest(7, "  ", SourceDialogue); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestPartRequestLifecycle(t *testing.T) {
	req, _ := NewPartRequest(7, "Toyota", SourceDialogue)
	req.NotifiedSellers = []int64{100}
	req.ExpiresAt = req.CreatedAt.Add(time.Hour)

	first := req.CreatedAt.Add(time.Minute)
	req.MarkAnswered(first)
	req.MarkAnswered(first.Add(time.Minute))
	if req.Status != RequestAnswered || req.Answers != 2 {
		t.Errorf("unexpected state %s/%d", req.Status, req.Answers)
	}
	if req.AnsweredAt == nil || !req.AnsweredAt.Equal(first) {
		t.Errorf("first answer time should stick, got %v", req.AnsweredAt)
	}

	if !req.WasNotified(100) || req.WasNotified(101) {
		t.Error("WasNotified mismatch")
	}
	if req.Expired(req.CreatedAt) || !req.Expired(req.ExpiresAt) {
		t.Error("expiry boundary mismatch")
	}

	cp := req.Clone()
	cp.NotifiedSellers[0] = 999
	*cp.AnsweredAt = time.Time{}
	if req.NotifiedSellers[0] != 100 || req.AnsweredAt.IsZero() {
		t.Error("clone shares state with original")
	}
}

// --- Conversation Tests ---

func TestStageTerminal(t *testing.T) {
	for _, s := range []Stage{StageSent, StageCancelled, StageAnswered} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []Stage{StageSelectingCar, StageSelectingPart, StageConfirmingRequest, StageSelectingResponse, StageEnteringPrice} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}
