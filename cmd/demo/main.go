// Command demo runs a buyer/seller round trip in-process over the noop
// Telegram adapter and prints what each side would have received.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"telegram-parts-broker/internal/application"
	"telegram-parts-broker/internal/config"
	"telegram-parts-broker/internal/domain/model"
	tele "telegram-parts-broker/internal/infra/adapters/telegram"
	"telegram-parts-broker/internal/infra/i18n"
	"telegram-parts-broker/internal/infra/logging"
	"telegram-parts-broker/internal/infra/memory"
	"telegram-parts-broker/internal/infra/roster"
	"telegram-parts-broker/internal/infra/worker"
	"telegram-parts-broker/internal/usecase"
)

const demoRoster = `[
  {"id": 1, "name": "Corolla Spares", "brands": ["Toyota"], "contact": {"telegramId": 100}},
  {"id": 2, "name": "Bavaria Parts", "brands": ["BMW"], "contact": {"telegram_id": "200"}}
]`

func main() {
	verbose := flag.Bool("v", false, "log every outbound message")
	flag.Parse()

	level := "warn"
	if *verbose {
		level = "info"
	}
	logger := logging.New(config.LogConfig{Level: level, Format: "console"}, true)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	dir, err := os.MkdirTemp("", "parts-demo")
	if err != nil {
		logger.Fatal().Err(err).Msg("temp dir")
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "sellers.json")
	if err := os.WriteFile(path, []byte(demoRoster), 0o600); err != nil {
		logger.Fatal().Err(err).Msg("write roster")
	}

	tr, err := i18n.NewTranslator(i18n.LocalesFS, "en")
	if err != nil {
		logger.Fatal().Err(err).Msg("locale")
	}
	directory := usecase.NewDirectoryUseCase(roster.NewFileSource(path, logger), logger)
	if _, err := directory.Load(ctx); err != nil {
		logger.Fatal().Err(err).Msg("roster")
	}

	bot := tele.NewNoopBotAdapter(10*time.Millisecond, logger)
	pool := worker.NewPool(2, logger)
	pool.Start(ctx)
	defer pool.Stop()

	router := usecase.NewRouterUseCase(directory, memory.NewRequestStore(), bot, tr, pool, nil, usecase.RouterOptions{
		RequestTTL:         time.Hour,
		SendAttempts:       2,
		RetryBackoff:       50 * time.Millisecond,
		RestrictResponders: true,
	}, logger)
	dialogue := usecase.NewDialogueUseCase(memory.NewStateRepo(30*time.Minute), router, usecase.DialogueOptions{
		Brands: []string{"Toyota", "Honda", "Nissan", "BMW"},
	}, logger)
	miniApp := usecase.NewMiniAppUseCase(directory, router, true, logger)
	facade := application.NewBotFacade(dialogue, router, miniApp, directory, tr, "https://example.invalid/app", logger)

	buyer := model.Actor{TelegramID: 7, Username: "buyer7"}
	seller := model.Actor{TelegramID: 100, Username: "corolla_spares"}

	steps := []struct {
		who  string
		chat int64
		run  func() application.Reply
	}{
		{"buyer", 7, func() application.Reply {
			return facade.HandleWebAppData(ctx, buyer, []byte(`{"brand":"toyota","model":"Corolla","year":2020,"category":"Body","subcategory":"Bumper","description":"front, silver"}`), usecase.ChannelWebAppData)
		}},
		{"seller", 100, func() application.Reply { return facade.HandleRespond(ctx, seller, "/respond_7") }},
		{"seller", 100, func() application.Reply { return facade.HandleCallback(ctx, seller, usecase.CallbackAvailable) }},
		{"seller", 100, func() application.Reply { return facade.HandleText(ctx, seller, "abc") }},
		{"seller", 100, func() application.Reply { return facade.HandleText(ctx, seller, "300") }},
		{"buyer", 7, func() application.Reply { return facade.HandleMyRequest(ctx, buyer) }},
	}
	for i, s := range steps {
		rep := s.run()
		fmt.Printf("--- step %d: reply to %s (%d)\n%s\n\n", i+1, s.who, s.chat, rep.Text)
	}

	fmt.Println("=== outbound notifications ===")
	for _, p := range bot.Transcript() {
		fmt.Printf("-> %d\n%s\n\n", p.ChatID, p.Text)
	}
}
