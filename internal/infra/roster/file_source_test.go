//go:build !integration

package roster

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"telegram-parts-broker/internal/domain"
)

func writeRoster(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write roster: %v", err)
	}
	return p
}

func TestFileSource_Load(t *testing.T) {
	ctx := context.Background()

	t.Run("should load json roster and skip partial records", func(t *testing.T) {
		// --- Arrange ---
		path := writeRoster(t, "sellers.json", `[
			{"id": 1, "name": "Gulf Parts", "brands": ["Toyota", "Lexus"], "contact": {"telegramId": 100}},
			{"id": "s-2", "name": "Euro", "brands": ["BMW"], "contact": {"telegram_id": "200", "phone": "+971"}},
			{"name": "no id", "brands": ["Honda"]},
			{"id": 4, "name": "no brands", "brands": []},
			{"id": 5, "name": "no contact", "brands": ["Nissan"]},
			"not an object"
		]`)

		// --- Act ---
		sellers, err := NewFileSource(path, nil).Load(ctx)

		// --- Assert ---
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if len(sellers) != 3 {
			t.Fatalf("expected 3 sellers, got %d", len(sellers))
		}
		if sellers[0].ID != "1" || sellers[0].Contact.TelegramID != 100 {
			t.Errorf("unexpected first seller %+v", sellers[0])
		}
		if sellers[1].Contact.TelegramID != 200 || sellers[1].Contact.Phone != "+971" {
			t.Errorf("unexpected second seller contact %+v", sellers[1].Contact)
		}
		if sellers[2].Reachable() {
			t.Error("seller without contact must not be reachable")
		}
	})

	t.Run("should load yaml roster", func(t *testing.T) {
		path := writeRoster(t, "sellers.yaml", "- id: 1\n  name: Gulf Parts\n  brands: [Toyota]\n  contact:\n    telegram_id: 100\n- just-a-string\n")
		sellers, err := NewFileSource(path, nil).Load(ctx)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if len(sellers) != 1 || sellers[0].Contact.TelegramID != 100 {
			t.Fatalf("unexpected sellers %+v", sellers)
		}
	})

	t.Run("should skip duplicate ids", func(t *testing.T) {
		path := writeRoster(t, "sellers.json", `[{"id":1,"brands":["Toyota"]},{"id":"1","brands":["Honda"]}]`)
		sellers, err := NewFileSource(path, nil).Load(ctx)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if len(sellers) != 1 || sellers[0].Brands[0] != "Toyota" {
			t.Fatalf("unexpected sellers %+v", sellers)
		}
	})

	t.Run("should fail when the file is missing", func(t *testing.T) {
		_, err := NewFileSource(filepath.Join(t.TempDir(), "none.json"), nil).Load(ctx)
		if !errors.Is(err, domain.ErrDirectoryLoad) {
			t.Fatalf("expected ErrDirectoryLoad, got %v", err)
		}
	})

	t.Run("should fail when the top level is not a sequence", func(t *testing.T) {
		for name, body := range map[string]string{
			"obj.json":  `{"sellers": []}`,
			"bad.json":  `[{"id": 1,`,
			"map.yaml":  "sellers:\n  - id: 1\n",
			"text.yaml": "just text",
		} {
			_, err := NewFileSource(writeRoster(t, name, body), nil).Load(ctx)
			if !errors.Is(err, domain.ErrDirectoryLoad) {
				t.Errorf("%s: expected ErrDirectoryLoad, got %v", name, err)
			}
		}
	})
}
