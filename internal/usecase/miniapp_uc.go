package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"telegram-parts-broker/internal/domain"
	"telegram-parts-broker/internal/domain/model"
	"telegram-parts-broker/internal/infra/metrics"
)

// Submission channels, used in metrics and logs.
const (
	ChannelWebAppData = "web_app_data"
	ChannelHTTP       = "http"
)

// MiniAppPayload is the form the mini-app posts. Model and year may arrive as
// numbers or strings.
type MiniAppPayload struct {
	Brand       string       `json:"brand"`
	Model       model.FlexID `json:"model"`
	Year        model.FlexID `json:"year"`
	Category    string       `json:"category"`
	Subcategory string       `json:"subcategory"`
	Description string       `json:"description"`
}

// ParseMiniAppPayload decodes raw and checks the required fields.
func ParseMiniAppPayload(raw []byte) (*MiniAppPayload, error) {
	var p MiniAppPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPayloadParse, err)
	}
	p.Brand = strings.TrimSpace(p.Brand)
	var missing []string
	if p.Brand == "" {
		missing = append(missing, "brand")
	}
	if p.Model == "" {
		missing = append(missing, "model")
	}
	if p.Year == "" {
		missing = append(missing, "year")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", domain.ErrPayloadParse, strings.Join(missing, ", "))
	}
	return &p, nil
}

// MiniAppUseCase turns one atomic mini-app submission into a dispatch.
type MiniAppUseCase struct {
	dir            SellerDirectory
	router         NotificationRouter
	reloadOnSubmit bool
	log            *zerolog.Logger
}

func NewMiniAppUseCase(dir SellerDirectory, router NotificationRouter, reloadOnSubmit bool, logger *zerolog.Logger) *MiniAppUseCase {
	return &MiniAppUseCase{dir: dir, router: router, reloadOnSubmit: reloadOnSubmit, log: logger}
}

// Submit parses raw, tags it with the submitter and dispatches it. A failed
// roster reload aborts only this submission; the previous roster stays loaded.
func (m *MiniAppUseCase) Submit(ctx context.Context, actor model.Actor, raw []byte, channel string) (*model.DispatchReport, error) {
	report, err := m.submit(ctx, actor, raw)
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrPayloadParse):
		result = "bad_payload"
	case errors.Is(err, domain.ErrDirectoryLoad):
		result = "directory_error"
	default:
		result = "error"
	}
	metrics.IncWebAppSubmission(channel, result)
	if err != nil {
		m.log.Warn().Err(err).Int64("tg_id", actor.TelegramID).Str("channel", channel).Msg("mini-app submission rejected")
	}
	return report, err
}

func (m *MiniAppUseCase) submit(ctx context.Context, actor model.Actor, raw []byte) (*model.DispatchReport, error) {
	if actor.TelegramID == 0 {
		return nil, domain.ErrInvalidArgument
	}
	payload, err := ParseMiniAppPayload(raw)
	if err != nil {
		return nil, err
	}
	if m.reloadOnSubmit {
		if err := m.dir.Reload(ctx); err != nil {
			return nil, err
		}
	}

	req, err := model.NewPartRequest(actor.TelegramID, payload.Brand, model.SourceMiniApp)
	if err != nil {
		return nil, err
	}
	req.BuyerUsername = actor.Username
	req.Model = payload.Model.String()
	req.Year = payload.Year.String()
	req.Category = strings.TrimSpace(payload.Category)
	req.Subcategory = strings.TrimSpace(payload.Subcategory)
	req.Description = strings.TrimSpace(payload.Description)

	return m.router.Dispatch(ctx, req)
}
