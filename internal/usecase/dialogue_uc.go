package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/looplab/fsm"
	"github.com/rs/zerolog"

	"telegram-parts-broker/internal/domain"
	"telegram-parts-broker/internal/domain/model"
	"telegram-parts-broker/internal/domain/ports/repository"
)

// Callback payloads attached to dialogue buttons.
const (
	CallbackBrandPrefix  = "brand:"
	CallbackConfirm      = "req:confirm"
	CallbackCancel       = "req:cancel"
	CallbackAvailable    = "resp:available"
	CallbackNotAvailable = "resp:not_available"
)

// dialogue events
const (
	evChooseBrand  = "choose_brand"
	evDescribePart = "describe_part"
	evConfirm      = "confirm"
	evCancel       = "cancel"
	evAvailable    = "available"
	evNotAvailable = "not_available"
	evQuote        = "quote"
)

// Button is a localized button: Key is translated with Args, Data is sent back
// on press.
type Button struct {
	Key  string
	Args []interface{}
	Data string
}

// Prompt is what the bot says next. Edit asks the transport to replace the
// message whose button was pressed instead of sending a new one.
type Prompt struct {
	Key     string
	Args    []interface{}
	Buttons [][]Button
	Edit    bool
}

type DialogueOptions struct {
	Brands   []string
	Currency string
}

// DialogueUseCase drives the buyer track (brand, part, confirmation) and the
// seller track (availability, price). State is kept per Telegram user; each
// transition is checked by a state machine built from the stored stage.
type DialogueUseCase struct {
	states repository.StateRepository
	router NotificationRouter
	opts   DialogueOptions
	log    *zerolog.Logger
}

func NewDialogueUseCase(states repository.StateRepository, router NotificationRouter, opts DialogueOptions, logger *zerolog.Logger) *DialogueUseCase {
	if opts.Currency == "" {
		opts.Currency = "AED"
	}
	return &DialogueUseCase{states: states, router: router, opts: opts, log: logger}
}

func stages(ss ...model.Stage) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = string(s)
	}
	return out
}

func buyerMachine(stage model.Stage) *fsm.FSM {
	return fsm.NewFSM(string(stage), fsm.Events{
		{Name: evChooseBrand, Src: stages(model.StageSelectingCar), Dst: string(model.StageSelectingPart)},
		{Name: evDescribePart, Src: stages(model.StageSelectingPart), Dst: string(model.StageConfirmingRequest)},
		{Name: evConfirm, Src: stages(model.StageConfirmingRequest), Dst: string(model.StageSent)},
		{Name: evCancel, Src: stages(model.StageSelectingCar, model.StageSelectingPart, model.StageConfirmingRequest), Dst: string(model.StageCancelled)},
	}, fsm.Callbacks{})
}

func sellerMachine(stage model.Stage) *fsm.FSM {
	return fsm.NewFSM(string(stage), fsm.Events{
		{Name: evAvailable, Src: stages(model.StageSelectingResponse), Dst: string(model.StageEnteringPrice)},
		{Name: evNotAvailable, Src: stages(model.StageSelectingResponse), Dst: string(model.StageAnswered)},
		{Name: evQuote, Src: stages(model.StageEnteringPrice), Dst: string(model.StageAnswered)},
		{Name: evCancel, Src: stages(model.StageSelectingResponse, model.StageEnteringPrice), Dst: string(model.StageCancelled)},
	}, fsm.Callbacks{})
}

// advance fires event on a local copy of st. Nothing is persisted here.
func advance(ctx context.Context, st *model.ConversationState, event string) error {
	var m *fsm.FSM
	if st.Track == model.TrackSeller {
		m = sellerMachine(st.Stage)
	} else {
		m = buyerMachine(st.Stage)
	}
	if err := m.Event(ctx, event); err != nil {
		return fmt.Errorf("%w: %s at %s", domain.ErrInvalidTransition, event, st.Stage)
	}
	st.Stage = model.Stage(m.Current())
	st.Touch()
	return nil
}

// StartSearch begins the buyer track, replacing any dialogue in progress.
func (d *DialogueUseCase) StartSearch(ctx context.Context, actor model.Actor) (*Prompt, error) {
	st := model.NewConversationState(actor.TelegramID, model.TrackBuyer, model.StageSelectingCar)
	if err := d.states.SetState(ctx, actor.TelegramID, st); err != nil {
		return nil, err
	}
	return &Prompt{Key: "choose_brand", Buttons: d.brandMenu()}, nil
}

func (d *DialogueUseCase) brandMenu() [][]Button {
	var rows [][]Button
	var row []Button
	for _, b := range d.opts.Brands {
		row = append(row, Button{Key: b, Data: CallbackBrandPrefix + b})
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	return rows
}

func (d *DialogueUseCase) menuBrand(in string) (string, bool) {
	for _, b := range d.opts.Brands {
		if model.NormalizeBrand(b) == model.NormalizeBrand(in) {
			return b, true
		}
	}
	return "", false
}

// HandleCallback handles a button press carrying one of the Callback* payloads.
func (d *DialogueUseCase) HandleCallback(ctx context.Context, actor model.Actor, data string) (*Prompt, error) {
	st, err := d.states.GetState(ctx, actor.TelegramID)
	if err != nil {
		return nil, err
	}

	switch {
	case strings.HasPrefix(data, CallbackBrandPrefix):
		brand, ok := d.menuBrand(strings.TrimPrefix(data, CallbackBrandPrefix))
		if !ok {
			return nil, fmt.Errorf("%w: brand not in menu", domain.ErrInvalidTransition)
		}
		if err := advance(ctx, st, evChooseBrand); err != nil {
			return nil, err
		}
		st.Brand = brand
		if err := d.states.SetState(ctx, actor.TelegramID, st); err != nil {
			return nil, err
		}
		return &Prompt{Key: "enter_part", Args: []interface{}{brand}, Edit: true}, nil

	case data == CallbackConfirm:
		return d.confirm(ctx, actor, st)

	case data == CallbackCancel:
		return d.Cancel(ctx, actor)

	case data == CallbackAvailable:
		if err := advance(ctx, st, evAvailable); err != nil {
			return nil, err
		}
		if err := d.states.SetState(ctx, actor.TelegramID, st); err != nil {
			return nil, err
		}
		return &Prompt{Key: "enter_price", Args: []interface{}{d.opts.Currency}, Edit: true}, nil

	case data == CallbackNotAvailable:
		if err := advance(ctx, st, evNotAvailable); err != nil {
			return nil, err
		}
		err := d.router.RelayUnavailable(ctx, st.BuyerID, actor)
		if err := d.finishSellerTurn(ctx, actor.TelegramID, err); err != nil {
			return nil, err
		}
		return &Prompt{Key: "relay_done", Edit: true}, nil
	}
	return nil, fmt.Errorf("%w: unknown callback %q", domain.ErrInvalidTransition, data)
}

func (d *DialogueUseCase) confirm(ctx context.Context, actor model.Actor, st *model.ConversationState) (*Prompt, error) {
	if err := advance(ctx, st, evConfirm); err != nil {
		return nil, err
	}
	req, err := model.NewPartRequest(actor.TelegramID, st.Brand, model.SourceDialogue)
	if err != nil {
		return nil, err
	}
	req.BuyerUsername = actor.Username
	req.Description = st.Part

	report, err := d.router.Dispatch(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := d.states.ClearState(ctx, actor.TelegramID); err != nil {
		d.log.Warn().Err(err).Int64("tg_id", actor.TelegramID).Msg("clear state failed")
	}
	return ReportPrompt(report), nil
}

// ReportPrompt tells the buyer how the fan-out went.
func ReportPrompt(report *model.DispatchReport) *Prompt {
	reachable := report.Matched - report.SkippedNoContact
	switch {
	case report.Delivered == 0:
		return &Prompt{Key: "request_no_sellers", Args: []interface{}{report.Brand}, Edit: true}
	case report.Delivered < reachable:
		return &Prompt{Key: "request_partial", Args: []interface{}{report.Delivered, reachable}, Edit: true}
	default:
		return &Prompt{Key: "request_sent", Args: []interface{}{report.Delivered}, Edit: true}
	}
}

// HandleText feeds free text into the actor's dialogue.
func (d *DialogueUseCase) HandleText(ctx context.Context, actor model.Actor, text string) (*Prompt, error) {
	st, err := d.states.GetState(ctx, actor.TelegramID)
	if err != nil {
		return nil, err
	}

	switch st.Stage {
	case model.StageSelectingPart:
		part := strings.TrimSpace(text)
		if part == "" {
			return &Prompt{Key: "enter_part", Args: []interface{}{st.Brand}}, nil
		}
		if err := advance(ctx, st, evDescribePart); err != nil {
			return nil, err
		}
		st.Part = part
		if err := d.states.SetState(ctx, actor.TelegramID, st); err != nil {
			return nil, err
		}
		return &Prompt{
			Key:  "confirm_request",
			Args: []interface{}{st.Brand, st.Part},
			Buttons: [][]Button{{
				{Key: "button_confirm", Data: CallbackConfirm},
				{Key: "button_cancel", Data: CallbackCancel},
			}},
		}, nil

	case model.StageEnteringPrice:
		price, err := ParsePrice(text)
		if err != nil {
			return nil, err
		}
		if err := advance(ctx, st, evQuote); err != nil {
			return nil, err
		}
		err = d.router.RelayQuote(ctx, st.BuyerID, price, actor)
		if err := d.finishSellerTurn(ctx, actor.TelegramID, err); err != nil {
			return nil, err
		}
		return &Prompt{Key: "relay_done"}, nil
	}
	return nil, fmt.Errorf("%w: text at %s", domain.ErrInvalidTransition, st.Stage)
}

// finishSellerTurn ends the seller track unless the answer could not be
// delivered, in which case the seller keeps the stage and may try again.
func (d *DialogueUseCase) finishSellerTurn(ctx context.Context, tgID int64, relayErr error) error {
	if relayErr != nil && errors.Is(relayErr, domain.ErrDelivery) {
		return relayErr
	}
	if err := d.states.ClearState(ctx, tgID); err != nil {
		d.log.Warn().Err(err).Int64("tg_id", tgID).Msg("clear state failed")
	}
	return relayErr
}

// StartSellerResponse enters the seller track from a respond_<buyerId> command.
func (d *DialogueUseCase) StartSellerResponse(ctx context.Context, actor model.Actor, command string) (*Prompt, error) {
	buyerID, err := ParseRespondCommand(command)
	if err != nil {
		return nil, err
	}
	st := model.NewConversationState(actor.TelegramID, model.TrackSeller, model.StageSelectingResponse)
	st.BuyerID = buyerID
	if err := d.states.SetState(ctx, actor.TelegramID, st); err != nil {
		return nil, err
	}
	return &Prompt{
		Key: "respond_choose",
		Buttons: [][]Button{{
			{Key: "button_available", Data: CallbackAvailable},
			{Key: "button_not_available", Data: CallbackNotAvailable},
		}},
	}, nil
}

// Cancel abandons the actor's dialogue. It fails with ErrNoConversation when
// there is none.
func (d *DialogueUseCase) Cancel(ctx context.Context, actor model.Actor) (*Prompt, error) {
	st, err := d.states.GetState(ctx, actor.TelegramID)
	if err != nil {
		return nil, err
	}
	if err := advance(ctx, st, evCancel); err != nil {
		return nil, err
	}
	if err := d.states.ClearState(ctx, actor.TelegramID); err != nil {
		return nil, err
	}
	return &Prompt{Key: "request_cancelled", Edit: true}, nil
}

// Stage reports where the actor is, for diagnostics and tests.
func (d *DialogueUseCase) Stage(ctx context.Context, tgID int64) (model.Stage, error) {
	st, err := d.states.GetState(ctx, tgID)
	if err != nil {
		return "", err
	}
	return st.Stage, nil
}

var respondCmd = regexp.MustCompile(`^respond_([0-9]+)$`)

// ParseRespondCommand extracts the buyer id from "respond_<id>". A leading
// slash and a trailing @botname are tolerated; anything else is rejected.
func ParseRespondCommand(command string) (int64, error) {
	cmd := strings.TrimPrefix(strings.TrimSpace(command), "/")
	if at := strings.IndexByte(cmd, '@'); at >= 0 {
		cmd = cmd[:at]
	}
	m := respondCmd.FindStringSubmatch(cmd)
	if m == nil {
		return 0, fmt.Errorf("%w: %q", domain.ErrInvalidCommand, command)
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", domain.ErrInvalidCommand, command)
	}
	return id, nil
}

// ParsePrice accepts a finite, non-negative decimal number.
func ParsePrice(text string) (float64, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return 0, fmt.Errorf("%w: empty price", domain.ErrValidation)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %q is not a number", domain.ErrValidation, s)
	}
	if v < 0 {
		return 0, fmt.Errorf("%w: negative price", domain.ErrValidation)
	}
	return v, nil
}
