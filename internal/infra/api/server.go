package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	initdata "github.com/telegram-mini-apps/init-data-golang"

	"telegram-parts-broker/internal/domain"
	"telegram-parts-broker/internal/domain/model"
	"telegram-parts-broker/internal/infra/logging"
	"telegram-parts-broker/internal/infra/metrics"
	"telegram-parts-broker/internal/usecase"
)

const maxPayloadBytes = 16 << 10

type MiniAppSubmitter interface {
	Submit(ctx context.Context, actor model.Actor, raw []byte, channel string) (*model.DispatchReport, error)
}

type Directory interface {
	All() []*model.Seller
	Reload(ctx context.Context) error
}

type RequestLister interface {
	Open(ctx context.Context) ([]*model.PartRequest, error)
}

type Options struct {
	BotToken    string
	InitDataTTL time.Duration
	Timeout     time.Duration
}

// Server is the HTTP surface: health, metrics, mini-app submissions and the
// admin API.
type Server struct {
	miniApp  MiniAppSubmitter
	dir      Directory
	requests RequestLister
	auth     *AuthManager
	opts     Options
	log      *zerolog.Logger
	now      func() time.Time
}

// NewServer builds the server. A nil auth manager leaves the admin API unmounted.
func NewServer(miniApp MiniAppSubmitter, dir Directory, requests RequestLister, auth *AuthManager, opts Options, logger *zerolog.Logger) *Server {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	return &Server{
		miniApp:  miniApp,
		dir:      dir,
		requests: requests,
		auth:     auth,
		opts:     opts,
		log:      logging.Component(logger, "http"),
		now:      time.Now,
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID(), Recover(s.log), RequestLog(s.log), Timeout(s.opts.Timeout))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/miniapp/requests", s.handleMiniAppSubmit)

		if s.auth == nil {
			return
		}
		r.Post("/admin/login", s.handleAdminLogin)
		r.Group(func(r chi.Router) {
			r.Use(s.auth.RequireAdmin, s.adminMetrics)
			r.Get("/admin/sellers", s.handleListSellers)
			r.Post("/admin/sellers/reload", s.handleReloadSellers)
			r.Get("/admin/requests", s.handleListRequests)
		})
	})
	return r
}

// ---- mini-app ----

// actorFromInitData validates "Authorization: tma <initData>" and returns the
// Telegram user it was signed for.
func (s *Server) actorFromInitData(r *http.Request) (model.Actor, error) {
	hdr := r.Header.Get("Authorization")
	scheme, raw, ok := strings.Cut(hdr, " ")
	if !ok || !strings.EqualFold(scheme, "tma") || strings.TrimSpace(raw) == "" {
		return model.Actor{}, errors.New("missing init data")
	}
	raw = strings.TrimSpace(raw)
	if err := initdata.Validate(raw, s.opts.BotToken, s.opts.InitDataTTL); err != nil {
		return model.Actor{}, err
	}
	data, err := initdata.Parse(raw)
	if err != nil {
		return model.Actor{}, err
	}
	if data.User.ID == 0 {
		return model.Actor{}, errors.New("init data has no user")
	}
	return model.Actor{TelegramID: data.User.ID, Username: data.User.Username, FirstName: data.User.FirstName}, nil
}

func (s *Server) handleMiniAppSubmit(w http.ResponseWriter, r *http.Request) {
	actor, err := s.actorFromInitData(r)
	if err != nil {
		metrics.IncWebAppSubmission(usecase.ChannelHTTP, "unauthorized")
		writeError(w, http.StatusUnauthorized, "invalid init data")
		return
	}
	ctx := logging.WithTgID(r.Context(), actor.TelegramID)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes+1))
	if err != nil || len(body) > maxPayloadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	report, err := s.miniApp.Submit(ctx, actor, body, usecase.ChannelHTTP)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, report)
	case errors.Is(err, domain.ErrPayloadParse):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrDirectoryLoad):
		writeError(w, http.StatusServiceUnavailable, "seller directory unavailable")
	default:
		logging.With(ctx, s.log).Error().Err(err).Msg("mini-app submission failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// ---- admin ----

func (s *Server) adminMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := &respWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(ww, r)
		metrics.IncAdminRequest(r.URL.Path, http.StatusText(ww.status))
	})
}

func (s *Server) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		APIKey string `json:"api_key"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxPayloadBytes)).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if !s.auth.CheckKey(in.APIKey) {
		metrics.IncAdminRequest(r.URL.Path, "unauthorized")
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	tok, exp, err := s.auth.Mint(s.now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	metrics.IncAdminRequest(r.URL.Path, "ok")
	writeJSON(w, http.StatusOK, map[string]any{"token": tok, "expires_at": exp.UTC()})
}

type sellerView struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Brands     []string `json:"brands"`
	TelegramID int64    `json:"telegram_id,omitempty"`
	Reachable  bool     `json:"reachable"`
}

func (s *Server) handleListSellers(w http.ResponseWriter, r *http.Request) {
	all := s.dir.All()
	items := make([]sellerView, 0, len(all))
	for _, sl := range all {
		items = append(items, sellerView{
			ID:         sl.ID,
			Name:       sl.Name,
			Brands:     sl.Brands,
			TelegramID: sl.Contact.TelegramID,
			Reachable:  sl.Reachable(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleReloadSellers(w http.ResponseWriter, r *http.Request) {
	if err := s.dir.Reload(r.Context()); err != nil {
		logging.With(r.Context(), s.log).Warn().Err(err).Msg("admin roster reload failed")
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sellers": len(s.dir.All())})
}

func (s *Server) handleListRequests(w http.ResponseWriter, r *http.Request) {
	items, err := s.requests.Open(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if items == nil {
		items = []*model.PartRequest{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// ---- helpers ----

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
