// Command breathe is the terminal client for the BREATHE chat service.
package main

import (
	"log/slog"
	"os"

	"breathechat/internal/api"
	"breathechat/internal/chat"
	"breathechat/internal/config"
	"breathechat/internal/session"
	"breathechat/internal/storage"
	"breathechat/internal/ui"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Starting BREATHE client", "api", cfg.APIBaseURL, "state_dir", cfg.StateDir)

	store, err := storage.NewFileStore(cfg.StateDir)
	if err != nil {
		logger.Error("Failed to open local storage", "error", err)
		os.Exit(1)
	}

	client := api.NewClient(cfg.APIBaseURL, cfg.HTTPTimeout, store, logger)
	sessionStore := session.New(api.NewAuthService(client), store, logger)

	chatStore := chat.New(api.NewChatService(client), store, func() bool {
		state := sessionStore.State()
		return state.User != nil && state.User.IsApproved.IsApproved()
	}, logger)

	app := ui.NewApp(sessionStore, chatStore, logger)
	program := tea.NewProgram(app, tea.WithAltScreen())

	// Push store changes into the UI loop so banner auto-clears and any
	// out-of-band updates re-render without a keypress.
	sessionStore.Subscribe(func(s session.State) {
		program.Send(ui.SessionStateMsg(s))
	})
	chatStore.Subscribe(func(s chat.State) {
		program.Send(ui.ChatStateMsg(s))
	})

	if _, err := program.Run(); err != nil {
		logger.Error("Application failed", "error", err)
		os.Exit(1)
	}
}
