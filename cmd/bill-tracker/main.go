package main

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/parfinanciero/bill-tracker/internal/bill"
	"github.com/parfinanciero/bill-tracker/internal/gateway"
	"github.com/parfinanciero/bill-tracker/internal/recognizing"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("bill-tracker")
	var (
		port        = fs.IntLong("port", 8080, "HTTP server port")
		dbPath      = fs.StringLong("db", "bill-tracker.db", "Database file path")
		storagePath = fs.StringLong("storage", "./receipts", "Storage directory path")
		backendURL  = fs.StringLong("backend-url", "", "Bills backend base URL (required)")
		recognizer  = fs.StringLong("recognizer", "ocrspace", "Recognizer type: 'ocrspace' or 'gemini'")
		ocrSpaceKey = fs.StringLong("ocrspace-key", "", "OCR.space API key (or set OCRSPACE_API_KEY env var)")
		ocrSpaceURL = fs.StringLong("ocrspace-url", "https://api.ocr.space", "OCR.space API base URL")
		ocrLanguage = fs.StringLong("ocr-language", "spa", "OCR.space language code (e.g. spa, eng)")
		geminiKey   = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		authUser    = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass    = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		showVersion = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("BILL_TRACKER"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if *backendURL == "" {
		slog.Error("Bills backend URL is required. Set --backend-url flag or BILL_TRACKER_BACKEND_URL environment variable")
		os.Exit(1)
	}

	// Initialize database
	slog.Info("Initializing database...")
	db, err := bill.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize recognizer based on type
	var rec recognizing.Recognizer
	switch *recognizer {
	case "ocrspace":
		apiKey := *ocrSpaceKey
		if apiKey == "" {
			apiKey = os.Getenv("OCRSPACE_API_KEY")
		}
		if apiKey == "" {
			slog.Error("OCR.space API key is required. Set --ocrspace-key flag or OCRSPACE_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing OCR.space recognizer...", "language", *ocrLanguage)
		rec, err = recognizing.NewOCRSpace(*ocrSpaceURL, apiKey, *ocrLanguage)
		if err != nil {
			slog.Error("Failed to initialize OCR.space", "error", err)
			os.Exit(1)
		}
	case "gemini":
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini recognizer...", "model", *geminiModel)
		rec, err = recognizing.NewGemini(apiKey, *geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Invalid recognizer type", "type", *recognizer, "valid", "ocrspace or gemini")
		os.Exit(1)
	}
	defer rec.Close()

	// Initialize storage
	slog.Info("Initializing storage...")
	store, err := bill.NewLocalStorage(*storagePath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	// Initialize submission gateway
	gw, err := gateway.NewClient(*backendURL)
	if err != nil {
		slog.Error("Failed to initialize gateway", "error", err)
		os.Exit(1)
	}

	// Initialize service
	billService := bill.NewService(db, rec, store, gw)

	// Initialize server
	basicAuth := bill.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := bill.NewServer(billService, basicAuth)

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "backend", *backendURL)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}
