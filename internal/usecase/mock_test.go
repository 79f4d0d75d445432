//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"telegram-parts-broker/internal/domain/model"
	"telegram-parts-broker/internal/domain/ports/adapter"
	"telegram-parts-broker/internal/domain/ports/repository"
	"telegram-parts-broker/internal/infra/i18n"
	"telegram-parts-broker/internal/infra/memory"
	"telegram-parts-broker/internal/usecase"
)

// =============================
// Adapters
// =============================

// ---- Mock TelegramBotAdapter ----

type MockTelegramBot struct {
	mu    sync.Mutex
	Sent  []adapter.SendMessageParams // Capture all delivered messages
	Calls int

	SendMessageFunc func(ctx context.Context, params adapter.SendMessageParams) error
}

var _ adapter.TelegramBotAdapter = (*MockTelegramBot)(nil)

func (m *MockTelegramBot) SendMessage(ctx context.Context, params adapter.SendMessageParams) error {
	m.mu.Lock()
	m.Calls++
	m.mu.Unlock()
	if m.SendMessageFunc != nil {
		if err := m.SendMessageFunc(ctx, params); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, params)
	return nil
}

// SentTo returns the texts delivered to chatID, in order.
func (m *MockTelegramBot) SentTo(chatID int64) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, p := range m.Sent {
		if p.ChatID == chatID {
			out = append(out, p.Text)
		}
	}
	return out
}

// =============================
// Repositories
// =============================

// ---- Mock SellerSource ----

type mockSellerSource struct {
	mu      sync.Mutex
	sellers []*model.Seller
	err     error
	loads   int
}

var _ repository.SellerSource = (*mockSellerSource)(nil)

func (m *mockSellerSource) Load(ctx context.Context) ([]*model.Seller, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	if m.err != nil {
		return nil, m.err
	}
	return append([]*model.Seller(nil), m.sellers...), nil
}

func (m *mockSellerSource) Describe() string { return "mock" }

func (m *mockSellerSource) fail(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

// ---- Mock DispatchLogRepository ----

type mockDispatchLog struct {
	mu         sync.Mutex
	dispatches []*model.DispatchReport
	relays     []*model.RelayRecord
}

var _ repository.DispatchLogRepository = (*mockDispatchLog)(nil)

func (m *mockDispatchLog) SaveDispatch(ctx context.Context, req *model.PartRequest, report *model.DispatchReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dispatches = append(m.dispatches, report)
	return nil
}

func (m *mockDispatchLog) SaveRelay(ctx context.Context, rec *model.RelayRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.relays = append(m.relays, rec)
	return nil
}

// =============================
// Fixtures
// =============================

func seller(id, name string, tgID int64, brands ...string) *model.Seller {
	return &model.Seller{ID: id, Name: name, Brands: brands, Contact: model.SellerContact{TelegramID: tgID}}
}

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

func newTestTranslator(t *testing.T) *i18n.Translator {
	t.Helper()
	tr, err := i18n.NewTranslator(i18n.LocalesFS, "en")
	if err != nil {
		t.Fatalf("load en locale: %v", err)
	}
	return tr
}

type harness struct {
	source  *mockSellerSource
	dir     *usecase.DirectoryUseCase
	store   *memory.RequestStore
	states  *memory.StateRepo
	bot     *MockTelegramBot
	audit   *mockDispatchLog
	router  *usecase.RouterUseCase
	dlg     *usecase.DialogueUseCase
	miniapp *usecase.MiniAppUseCase
}

type harnessOpt func(*usecase.RouterOptions)

func unrestricted(o *usecase.RouterOptions) { o.RestrictResponders = false }

func newHarness(t *testing.T, sellers []*model.Seller, opts ...harnessOpt) *harness {
	t.Helper()
	h := &harness{
		source: &mockSellerSource{sellers: sellers},
		store:  memory.NewRequestStore(),
		states: memory.NewStateRepo(30 * time.Minute),
		bot:    &MockTelegramBot{},
		audit:  &mockDispatchLog{},
	}
	h.dir = usecase.NewDirectoryUseCase(h.source, newTestLogger())
	if _, err := h.dir.Load(context.Background()); err != nil {
		t.Fatalf("load directory: %v", err)
	}
	ro := usecase.RouterOptions{
		RequestTTL:         24 * time.Hour,
		SendAttempts:       3,
		RetryBackoff:       time.Millisecond,
		Currency:           "AED",
		RestrictResponders: true,
	}
	for _, o := range opts {
		o(&ro)
	}
	h.router = usecase.NewRouterUseCase(h.dir, h.store, h.bot, newTestTranslator(t), nil, h.audit, ro, newTestLogger())
	h.dlg = usecase.NewDialogueUseCase(h.states, h.router, usecase.DialogueOptions{
		Brands:   []string{"Toyota", "Honda", "Nissan", "BMW"},
		Currency: "AED",
	}, newTestLogger())
	h.miniapp = usecase.NewMiniAppUseCase(h.dir, h.router, true, newTestLogger())
	return h
}

func containsAll(s string, parts ...string) bool {
	for _, p := range parts {
		if !strings.Contains(s, p) {
			return false
		}
	}
	return true
}

var errSendFailed = errors.New("telegram: bad gateway")
