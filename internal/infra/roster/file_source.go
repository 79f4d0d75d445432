package roster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"telegram-parts-broker/internal/domain"
	"telegram-parts-broker/internal/domain/model"
	"telegram-parts-broker/internal/domain/ports/repository"
)

var _ repository.SellerSource = (*FileSource)(nil)

// FileSource reads the seller roster from a JSON or YAML file. The file must
// hold a top-level sequence; entries that cannot be decoded or lack an id or
// brands are skipped.
type FileSource struct {
	path string
	log  *zerolog.Logger
}

func NewFileSource(path string, logger *zerolog.Logger) *FileSource {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "roster").Str("path", path).Logger()
	return &FileSource{path: path, log: &l}
}

func (s *FileSource) Describe() string { return s.path }

func (s *FileSource) Load(ctx context.Context) ([]*model.Seller, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s not found", domain.ErrDirectoryLoad, s.path)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrDirectoryLoad, err)
	}

	var records []model.SellerRecord
	var skipped int
	switch strings.ToLower(filepath.Ext(s.path)) {
	case ".yaml", ".yml":
		records, skipped, err = decodeYAML(data)
	default:
		records, skipped, err = decodeJSON(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDirectoryLoad, err)
	}

	sellers := make([]*model.Seller, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for i, rec := range records {
		seller, ok := rec.ToSeller()
		if !ok {
			skipped++
			s.log.Warn().Int("index", i).Msg("skipping roster entry without id or brands")
			continue
		}
		if _, dup := seen[seller.ID]; dup {
			skipped++
			s.log.Warn().Str("seller_id", seller.ID).Msg("skipping duplicate roster id")
			continue
		}
		seen[seller.ID] = struct{}{}
		sellers = append(sellers, seller)
	}
	s.log.Debug().Int("loaded", len(sellers)).Int("skipped", skipped).Msg("roster read")
	return sellers, nil
}

func decodeJSON(data []byte) ([]model.SellerRecord, int, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, 0, fmt.Errorf("roster is not a JSON array of objects: %w", err)
	}
	out := make([]model.SellerRecord, 0, len(raw))
	skipped := 0
	for _, item := range raw {
		var rec model.SellerRecord
		if err := json.Unmarshal(item, &rec); err != nil {
			skipped++
			continue
		}
		out = append(out, rec)
	}
	return out, skipped, nil
}

func decodeYAML(data []byte) ([]model.SellerRecord, int, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, 0, fmt.Errorf("roster is not valid YAML: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.SequenceNode {
		return nil, 0, errors.New("roster is not a YAML sequence")
	}
	items := doc.Content[0].Content
	out := make([]model.SellerRecord, 0, len(items))
	skipped := 0
	for _, item := range items {
		var rec model.SellerRecord
		if item.Kind != yaml.MappingNode || item.Decode(&rec) != nil {
			skipped++
			continue
		}
		out = append(out, rec)
	}
	return out, skipped, nil
}
