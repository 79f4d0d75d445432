package model

import "time"

// Track separates the buyer dialogue from the seller dialogue.
type Track string

const (
	TrackBuyer  Track = "buyer"
	TrackSeller Track = "seller"
)

// Stage is a node in one of the dialogue state machines.
type Stage string

const (
	StageSelectingCar      Stage = "selecting_car"
	StageSelectingPart     Stage = "selecting_part"
	StageConfirmingRequest Stage = "confirming_request"
	StageSelectingResponse Stage = "selecting_response"
	StageEnteringPrice     Stage = "entering_price"

	// Terminal stages; a conversation reaching one is removed.
	StageSent      Stage = "sent"
	StageCancelled Stage = "cancelled"
	StageAnswered  Stage = "answered"
)

func (s Stage) Terminal() bool {
	return s == StageSent || s == StageCancelled || s == StageAnswered
}

// ConversationState is the per-actor progress in a scripted dialogue.
type ConversationState struct {
	UserID int64 `json:"user_id"`
	Track  Track `json:"track"`
	Stage  Stage `json:"stage"`

	// buyer scratch fields
	Brand string `json:"brand,omitempty"`
	Part  string `json:"part,omitempty"`

	// seller scratch field: the buyer being answered
	BuyerID int64 `json:"buyer_id,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

func NewConversationState(userID int64, track Track, stage Stage) *ConversationState {
	return &ConversationState{UserID: userID, Track: track, Stage: stage, UpdatedAt: time.Now().UTC()}
}

// Touch stamps the state so expiry is measured from the last input.
func (c *ConversationState) Touch() { c.UpdatedAt = time.Now().UTC() }
