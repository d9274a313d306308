package main

import (
	"log/slog"
	"os"

	"token-auth-server/internal/app"
	"token-auth-server/internal/logger"
)

func main() {
	// raised or lowered by app.New once LOG_LEVEL is known
	level := new(slog.LevelVar)
	logHandler := logger.NewPrettyHandler(os.Stdout, &logger.Options{
		HandlerOptions: slog.HandlerOptions{Level: level},
		NoColor:        os.Getenv("NO_COLOR") != "",
	})
	slog.SetDefault(slog.New(logHandler))

	application, err := app.New(level)
	if err != nil {
		slog.Error("failed to initialize application", "error", err)
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		slog.Error("application run failed", "error", err)
		os.Exit(1)
	}
}
