package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"telegram-parts-broker/internal/domain"
	"telegram-parts-broker/internal/domain/model"
	"telegram-parts-broker/internal/domain/ports/repository"
	"telegram-parts-broker/internal/infra/metrics"
)

// Compile-time check
var _ SellerDirectory = (*DirectoryUseCase)(nil)

// SellerDirectory holds the seller roster and answers brand-match queries.
type SellerDirectory interface {
	FindByBrand(brand string) []*model.Seller
	FindByTelegramID(tgID int64) (*model.Seller, bool)
	Reload(ctx context.Context) error
	All() []*model.Seller
}

// DirectoryUseCase owns the roster snapshot. Readers always see a complete
// roster: a reload swaps the slice only after the source was read in full.
type DirectoryUseCase struct {
	source repository.SellerSource
	log    *zerolog.Logger

	mu      sync.RWMutex
	sellers []*model.Seller
	loaded  bool
}

func NewDirectoryUseCase(source repository.SellerSource, logger *zerolog.Logger) *DirectoryUseCase {
	return &DirectoryUseCase{source: source, log: logger}
}

// Load reads the roster for the first time. A failure here is fatal to startup.
func (d *DirectoryUseCase) Load(ctx context.Context) ([]*model.Seller, error) {
	if err := d.Reload(ctx); err != nil {
		return nil, err
	}
	return d.All(), nil
}

// Reload re-reads the source. On failure the previous roster stays in place.
func (d *DirectoryUseCase) Reload(ctx context.Context) error {
	sellers, err := d.source.Load(ctx)
	if err != nil {
		metrics.IncDirectoryReload("error")
		if !errors.Is(err, domain.ErrDirectoryLoad) {
			err = fmt.Errorf("%w: %v", domain.ErrDirectoryLoad, err)
		}
		d.log.Error().Err(err).Str("source", d.source.Describe()).Msg("roster reload failed; keeping previous roster")
		return err
	}

	d.mu.Lock()
	d.sellers = sellers
	d.loaded = true
	d.mu.Unlock()

	metrics.IncDirectoryReload("ok")
	metrics.SetDirectorySize(len(sellers))
	d.log.Info().Int("sellers", len(sellers)).Str("source", d.source.Describe()).Msg("roster loaded")
	return nil
}

// FindByBrand returns sellers servicing brand in roster order. It never fails;
// an unknown brand yields an empty slice.
func (d *DirectoryUseCase) FindByBrand(brand string) []*model.Seller {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*model.Seller, 0)
	for _, s := range d.sellers {
		if s.Handles(brand) {
			out = append(out, s)
		}
	}
	return out
}

// FindByTelegramID resolves a responder to a roster entry, if any.
func (d *DirectoryUseCase) FindByTelegramID(tgID int64) (*model.Seller, bool) {
	if tgID == 0 {
		return nil, false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, s := range d.sellers {
		if s.Contact.TelegramID == tgID {
			return s, true
		}
	}
	return nil, false
}

func (d *DirectoryUseCase) All() []*model.Seller {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]*model.Seller(nil), d.sellers...)
}

func (d *DirectoryUseCase) Loaded() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.loaded
}
