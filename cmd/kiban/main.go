package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/kibankit/kiban-agent-kit/internal/app"
)

func main() {
	// Load a local .env when present; real environment variables win.
	_ = godotenv.Load()

	runner := app.NewRunner()
	os.Exit(runner.Run(os.Args[1:]))
}
