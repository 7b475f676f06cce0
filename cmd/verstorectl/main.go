package main

import (
	"context"
	"fmt"
	"os"

	"github.com/verstore/verstore/internal/app"
	"github.com/verstore/verstore/internal/cli"
)

func main() {
	// If the user asked for help, avoid initializing the full app (which
	// connects to the database)
	skipInit := false
	for _, a := range os.Args[1:] {
		if a == "-h" || a == "--help" || a == "help" {
			skipInit = true
			break
		}
	}

	if !skipInit {
		configPath := os.Getenv("VERSTORE_CONFIG")
		if configPath == "" {
			configPath = "."
		}
		ctx := context.Background()
		a, err := app.New(ctx, configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to initialize app: %v\n", err)
			os.Exit(1)
		}
		defer a.Close()
		cli.SetApp(a)
	}

	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
