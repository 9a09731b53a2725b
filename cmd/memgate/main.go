package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/supertedai/memgate/internal/cli"
)

func main() {
	// Optional .env for local development; ignored when absent.
	_ = godotenv.Load()

	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
