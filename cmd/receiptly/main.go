package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/receiptly/internal/interpret"
	"github.com/zombor/receiptly/internal/llm"
	"github.com/zombor/receiptly/internal/logging"
	"github.com/zombor/receiptly/internal/receipt"
	"github.com/zombor/receiptly/internal/scanning"
	"github.com/zombor/receiptly/internal/summary"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

type config struct {
	port          int
	historyDriver string
	dbPath        string
	storageType   string
	storagePath   string
	publicURL     string
	gcsBucket     string
	llmProvider   string
	llmModel      string
	llmTimeout    time.Duration
	llmRetries    int
	openAIKey     string
	openAIURL     string
	geminiKey     string
	geminiModel   string
	ollamaURL     string
	ollamaModel   string
	ocrEngine     string
	ocrLanguages  string
	visionModel   string
	authUser      string
	authPass      string
	logLevel      string
	logFormat     string
	logOutput     string
}

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	// A missing .env file is fine
	_ = godotenv.Load()

	fs := ff.NewFlagSet("receiptly")
	var (
		port          = fs.IntLong("port", 8080, "HTTP server port")
		historyDriver = fs.StringLong("history", "bolt", "History store: 'bolt' or 'sqlite'")
		dbPath        = fs.StringLong("db", "receiptly.db", "History database file path")
		storageType   = fs.StringLong("storage", "local", "Upload storage: 'local' or 'gcs'")
		storagePath   = fs.StringLong("storage-path", "./uploads", "Local storage directory path")
		publicURL     = fs.StringLong("public-url", "", "Public base URL for stored files (default http://localhost:<port>)")
		gcsBucket     = fs.StringLong("gcs-bucket", "", "Google Cloud Storage bucket for uploads")
		llmProvider   = fs.StringLong("llm", "openai", "Language model provider: 'openai', 'gemini' or 'ollama'")
		llmModel      = fs.StringLong("llm-model", "", "Language model name (provider default when empty)")
		llmTimeout    = fs.DurationLong("llm-timeout", 60*time.Second, "Per-call language model timeout")
		llmRetries    = fs.IntLong("llm-retries", 3, "Attempts per call when the model service is unavailable")
		openAIKey     = fs.StringLong("openai-key", "", "OpenAI-compatible API key (or set GROQ_API_KEY env var)")
		openAIURL     = fs.StringLong("openai-url", llm.DefaultGroqBaseURL, "OpenAI-compatible API base URL")
		geminiKey     = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel   = fs.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name")
		ollamaURL     = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel   = fs.StringLong("ollama-model", "llama3.1", "Ollama model name")
		ocrEngine     = fs.StringLong("ocr", "tesseract", "OCR engine: 'tesseract', 'gemini' or 'ollama'")
		ocrLanguages  = fs.StringLong("ocr-languages", "eng", "Comma separated tesseract languages")
		visionModel   = fs.StringLong("vision-model", "llava", "Ollama vision model used when --ocr=ollama")
		authUser      = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass      = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		logLevel      = fs.StringLong("log-level", "info", "Log level: debug, info, warn or error")
		logFormat     = fs.StringLong("log-format", "console", "Log format: 'console' or 'json'")
		logOutput     = fs.StringLong("log-output", "stdout", "Log output: stdout, stderr or a file path")
		showVersion   = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("RECEIPTLY"),
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

	cfg := config{
		port:          *port,
		historyDriver: *historyDriver,
		dbPath:        *dbPath,
		storageType:   *storageType,
		storagePath:   *storagePath,
		publicURL:     *publicURL,
		gcsBucket:     *gcsBucket,
		llmProvider:   *llmProvider,
		llmModel:      *llmModel,
		llmTimeout:    *llmTimeout,
		llmRetries:    *llmRetries,
		openAIKey:     *openAIKey,
		openAIURL:     *openAIURL,
		geminiKey:     *geminiKey,
		geminiModel:   *geminiModel,
		ollamaURL:     *ollamaURL,
		ollamaModel:   *ollamaModel,
		ocrEngine:     *ocrEngine,
		ocrLanguages:  *ocrLanguages,
		visionModel:   *visionModel,
		authUser:      *authUser,
		authPass:      *authPass,
		logLevel:      *logLevel,
		logFormat:     *logFormat,
		logOutput:     *logOutput,
	}

	flush, err := logging.Setup(logging.Config{Level: cfg.logLevel, Format: cfg.logFormat, Output: cfg.logOutput})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: setting up logging: %v\n", err)
		os.Exit(1)
	}
	defer flush()

	if err := run(cfg); err != nil {
		slog.Error("Fatal error", "error", err)
		flush()
		os.Exit(1)
	}
}

func run(cfg config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize history
	slog.Info("Initializing history...", "driver", cfg.historyDriver, "path", cfg.dbPath)
	history, err := newHistory(cfg)
	if err != nil {
		return fmt.Errorf("initializing history: %w", err)
	}
	defer history.Close()

	// Initialize storage
	slog.Info("Initializing storage...", "type", cfg.storageType)
	store, closeStore, err := newStorage(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}
	defer closeStore()

	// Initialize language model
	slog.Info("Initializing language model...", "provider", cfg.llmProvider)
	completer, err := newCompleter(cfg)
	if err != nil {
		return fmt.Errorf("initializing language model: %w", err)
	}
	defer completer.Close()

	// Initialize OCR
	slog.Info("Initializing OCR...", "engine", cfg.ocrEngine)
	recognizer, err := newRecognizer(cfg)
	if err != nil {
		return fmt.Errorf("initializing ocr: %w", err)
	}
	reader := scanning.NewReader(recognizer)
	defer reader.Close()

	receiptService := receipt.NewService(
		history,
		reader,
		store,
		interpret.NewInterpreter(completer, time.Now),
		summary.NewGenerator(completer),
	)

	basicAuth := receipt.BasicAuth{
		Username: cfg.authUser,
		Password: cfg.authPass,
	}
	server := receipt.NewServer(receiptService, basicAuth)

	addr := fmt.Sprintf(":%d", cfg.port)
	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)
	if cfg.authUser != "" || cfg.authPass != "" {
		slog.Info("Basic auth enabled", "user", cfg.authUser)
	}

	return server.Start(ctx, addr)
}

func newHistory(cfg config) (receipt.History, error) {
	switch cfg.historyDriver {
	case "bolt":
		return receipt.NewBoltHistory(cfg.dbPath)
	case "sqlite":
		return receipt.NewSQLiteHistory(cfg.dbPath)
	default:
		return nil, fmt.Errorf("invalid history driver %q, valid: bolt or sqlite", cfg.historyDriver)
	}
}

func newStorage(ctx context.Context, cfg config) (receipt.Storage, func(), error) {
	switch cfg.storageType {
	case "local":
		publicURL := cfg.publicURL
		if publicURL == "" {
			publicURL = fmt.Sprintf("http://localhost:%d", cfg.port)
		}
		store, err := receipt.NewLocalStorage(cfg.storagePath, publicURL)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	case "gcs":
		if cfg.gcsBucket == "" {
			return nil, nil, errors.New("--gcs-bucket is required for gcs storage")
		}
		store, err := receipt.NewGCSStorage(ctx, cfg.gcsBucket)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("invalid storage type %q, valid: local or gcs", cfg.storageType)
	}
}

func newCompleter(cfg config) (llm.Completer, error) {
	var (
		completer llm.Completer
		err       error
	)

	switch cfg.llmProvider {
	case "openai":
		// Get API key from flag or environment
		apiKey := cfg.openAIKey
		if apiKey == "" {
			apiKey = os.Getenv("GROQ_API_KEY")
		}
		completer, err = llm.NewOpenAI(llm.OpenAIConfig{
			APIKey:  apiKey,
			BaseURL: cfg.openAIURL,
			Model:   cfg.llmModel,
			Timeout: cfg.llmTimeout,
		})
	case "gemini":
		model := cfg.llmModel
		if model == "" {
			model = cfg.geminiModel
		}
		completer, err = llm.NewGemini(geminiAPIKey(cfg), model, cfg.llmTimeout)
	case "ollama":
		model := cfg.llmModel
		if model == "" {
			model = cfg.ollamaModel
		}
		completer, err = llm.NewOllama(cfg.ollamaURL, model, cfg.llmTimeout)
	default:
		return nil, fmt.Errorf("invalid llm provider %q, valid: openai, gemini or ollama", cfg.llmProvider)
	}
	if err != nil {
		return nil, err
	}

	return llm.NewRetrying(completer, cfg.llmRetries, 500*time.Millisecond), nil
}

func newRecognizer(cfg config) (scanning.Recognizer, error) {
	switch cfg.ocrEngine {
	case "tesseract":
		return scanning.NewTesseract(strings.Split(cfg.ocrLanguages, ",")...), nil
	case "gemini":
		return scanning.NewGemini(geminiAPIKey(cfg), cfg.geminiModel, cfg.llmTimeout)
	case "ollama":
		return scanning.NewOllama(cfg.ollamaURL, cfg.visionModel, cfg.llmTimeout)
	default:
		return nil, fmt.Errorf("invalid ocr engine %q, valid: tesseract, gemini or ollama", cfg.ocrEngine)
	}
}

// geminiAPIKey reads the Gemini API key from the flag or environment
func geminiAPIKey(cfg config) string {
	if cfg.geminiKey != "" {
		return cfg.geminiKey
	}
	return os.Getenv("GEMINI_API_KEY")
}
