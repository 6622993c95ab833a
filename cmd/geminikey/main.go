package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"tubeautomator/internal/infra"
	"tubeautomator/internal/infra/credentials"
	"tubeautomator/internal/sqlinline"
)

func main() {
	var (
		keyFlag   string
		clearFlag bool
		showFlag  bool
	)
	flag.StringVar(&keyFlag, "key", "", "Gemini API key to store (fallbacks to GEMINI_API_KEY)")
	flag.BoolVar(&clearFlag, "clear", false, "Remove the stored key")
	flag.BoolVar(&showFlag, "show", false, "Print a masked form of the stored key")
	flag.Parse()

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create pool: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	logger := infra.NewLogger("cli").With().Str("cmd", "geminikey").Logger()
	runner := infra.NewSQLRunner(pool, logger)
	if _, err := runner.Exec(ctx, sqlinline.QEnsureSchema); err != nil {
		fmt.Fprintf(os.Stderr, "failed to prepare schema: %v\n", err)
		os.Exit(1)
	}
	store := credentials.NewStore(runner)

	switch {
	case clearFlag:
		if err := store.DeleteToken(ctx, credentials.ProviderGemini); err != nil {
			fmt.Fprintf(os.Stderr, "failed to remove gemini api key: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("GEMINI API key removed")
		return
	case showFlag:
		key, err := store.GeminiAPIKey(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to read gemini api key: %v\n", err)
			os.Exit(1)
		}
		if key == "" {
			fmt.Println("no GEMINI API key stored")
			return
		}
		fmt.Printf("GEMINI API key: %s\n", mask(key))
		return
	}

	key := strings.TrimSpace(keyFlag)
	if key == "" {
		key = strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	}
	if key == "" {
		fmt.Fprintln(os.Stderr, "GEMINI API key is required via -key or environment")
		os.Exit(1)
	}
	if err := store.SetGeminiAPIKey(ctx, key); err != nil {
		fmt.Fprintf(os.Stderr, "failed to persist gemini api key: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("GEMINI API key stored successfully")
}

func mask(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}
