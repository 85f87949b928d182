package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/csvimport/internal/cli"
)

func main() {
	// A missing .env is fine; values then come from the environment.
	_ = godotenv.Overload()
	os.Exit(cli.Execute())
}
