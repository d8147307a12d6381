package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"piifinder/internal/adapter/browser"
	"piifinder/internal/adapter/llm"
	"piifinder/internal/adapter/tokenizer"
	"piifinder/internal/domain"
	"piifinder/internal/infra/config"
	"piifinder/internal/infra/logger"
	"piifinder/internal/infra/tracer"
	"piifinder/internal/usecase/aiselect"
	"piifinder/internal/usecase/pagecontext"
	"piifinder/internal/usecase/selector"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		showUsage(os.Stdout)
		os.Exit(1)
	}
	switch os.Args[1] {
	case "--help", "-h", "help":
		showUsage(os.Stdout)
		return
	case "--version", "version":
		fmt.Println("piifinder", version)
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := dispatch(ctx, os.Args[1], os.Args[2:], os.Stdin, os.Stdout)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func dispatch(ctx context.Context, cmd string, args []string, stdin io.Reader, stdout io.Writer) error {
	flags, rest, err := parseFlags(args)
	if err != nil {
		return err
	}

	switch cmd {
	case "export":
		return runExport(flags, rest, stdout)
	case "models":
		return runModels(stdout)
	case "doctor":
		return runDoctor(flags, stdout)
	}

	a, err := newApp(ctx, flags)
	if err != nil {
		return err
	}
	defer a.Close()

	switch cmd {
	case "select":
		return runSelect(ctx, a, flags, stdin, stdout)
	case "context":
		return runContext(ctx, a, flags, stdin, stdout)
	case "test":
		return runTest(ctx, a, flags, rest, stdin, stdout)
	case "apply":
		return runApply(ctx, a, flags, stdin, stdout)
	case "saved":
		return runSaved(ctx, a, flags, rest, stdout)
	case "mcp":
		return runMCP(ctx, a, stdin, stdout)
	default:
		return fmt.Errorf("unknown command %q\n\nRun 'piifinder --help' for usage information", cmd)
	}
}

func showUsage(w io.Writer) {
	fmt.Fprintln(w, `piifinder - CSS selectors for PII elements

USAGE:
    piifinder COMMAND [FLAGS]

COMMANDS:
    select      Generate a selector for the element at --target or with --text
    context     Print the trimmed context document the model would see
    test        Count the elements a selector matches
    apply       Mark the saved selectors of a host in the page and print it
    saved       Manage saved selectors
                Subcommands: add, list, remove, clear
    export      Print the escaped export form of a selector
    models      List known models and their token budgets
    mcp         Serve the selector tools over MCP (stdio)
    doctor      Check configuration, API key, store and browser

FLAGS:
    --config PATH      Config file (default: ./piifinder.yaml, env PIIFINDER_CONFIG)
    --html FILE        Page HTML from a file ("-" reads stdin)
    --url URL          Capture the page from a live browser
    --target CSS       Clicked element by CSS selector
    --text TEXT        Clicked element by its text
    --strategy NAME    smart (default), semantic or structural
    --selector CSS     Selector for test and saved add/remove
    --host NAME        Hostname for saved selectors (default: host of --url)
    --ai               Ask the model, falling back to the heuristic
    --model NAME       Model id (default from config)
    --key KEY          API key (default from config, PIIFINDER_AI_API_KEY or GEMINI_API_KEY)
    --save             Save the generated selector for the host
    --export           Print selectors in their escaped export form
    --json             Print JSON
    --output FILE      Write apply output to FILE

EXAMPLES:
    piifinder select --html page.html --text "jane@example.com"
    piifinder select --url https://shop.example.com/account --target ".email" --ai --save
    piifinder test --html page.html --selector ".billing-address p"
    piifinder apply --url https://shop.example.com/account --output marked.html
    piifinder saved list --host shop.example.com
    piifinder export "#1abc"`)
}

// cliFlags holds the flags shared by every command.
type cliFlags struct {
	Config   string
	HTML     string
	URL      string
	Target   string
	Text     string
	Strategy string
	Selector string
	Host     string
	Model    string
	APIKey   string
	Output   string
	AI       bool
	Save     bool
	Export   bool
	JSON     bool
}

// parseFlags accepts "--name value" and "--name=value". Arguments that are
// not flags are returned in order.
func parseFlags(args []string) (cliFlags, []string, error) {
	var flags cliFlags
	values := map[string]*string{
		"config":   &flags.Config,
		"html":     &flags.HTML,
		"url":      &flags.URL,
		"target":   &flags.Target,
		"text":     &flags.Text,
		"strategy": &flags.Strategy,
		"selector": &flags.Selector,
		"host":     &flags.Host,
		"model":    &flags.Model,
		"key":      &flags.APIKey,
		"output":   &flags.Output,
	}
	bools := map[string]*bool{
		"ai":     &flags.AI,
		"save":   &flags.Save,
		"export": &flags.Export,
		"json":   &flags.JSON,
	}

	var rest []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "-" || !strings.HasPrefix(arg, "--") {
			rest = append(rest, arg)
			continue
		}
		if arg == "--" {
			rest = append(rest, args[i+1:]...)
			break
		}
		name, value, hasValue := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		if b, ok := bools[name]; ok {
			if hasValue {
				return flags, nil, fmt.Errorf("flag --%s takes no value", name)
			}
			*b = true
			continue
		}
		dst, ok := values[name]
		if !ok {
			return flags, nil, fmt.Errorf("unknown flag --%s", name)
		}
		if !hasValue {
			if i+1 >= len(args) {
				return flags, nil, fmt.Errorf("flag --%s needs a value", name)
			}
			i++
			value = args[i]
		}
		*dst = value
	}
	return flags, rest, nil
}

func configPath(flags cliFlags) string {
	if flags.Config != "" {
		return flags.Config
	}
	if p := os.Getenv("PIIFINDER_CONFIG"); p != "" {
		return p
	}
	return "piifinder.yaml"
}

// loadConfig reads the config file and applies the command-line overrides.
func loadConfig(flags cliFlags) (*config.Config, error) {
	cfg, err := config.Load(configPath(flags))
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if flags.Model != "" {
		cfg.AI.Model = flags.Model
	}
	if flags.APIKey != "" {
		cfg.AI.APIKey = flags.APIKey
	}
	if flags.Strategy != "" {
		cfg.Selector.Strategy = flags.Strategy
	}
	return cfg, nil
}

// app holds the components a command needs, built once from config.
type app struct {
	cfg       *config.Config
	log       *slog.Logger
	strategy  domain.Strategy
	selector  selector.Options
	counter   domain.TokenCounter
	orch      *aiselect.Orchestrator
	loader    domain.PageLoader
	closers   []func() error
	shutdowns []func(context.Context) error
}

func newApp(ctx context.Context, flags cliFlags) (*app, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}

	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	a := &app{cfg: cfg, log: log, closers: []func() error{logCloser}}

	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("tracer: %w", err)
	}
	a.shutdowns = append(a.shutdowns, tracerShutdown)

	a.strategy, err = domain.ParseStrategy(cfg.Selector.Strategy)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.selector = selector.Options{MaxDepth: cfg.Selector.MaxDepth, FamilyBound: cfg.Selector.FamilyBound}

	if cfg.Context.TokenCounter == "tiktoken" {
		counter, err := tokenizer.New(cfg.Context.Encoding)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("token counter: %w", err)
		}
		a.counter = counter
	}

	var gen domain.TextGenerator
	if cfg.AI.Enabled {
		gen = llm.NewGenerator(cfg.AI, log)
	}
	a.orch = aiselect.New(gen, aiselect.LogAdvisor{Logger: log}, a.counter, aiselect.Config{
		Model:           cfg.AI.Model,
		APIKey:          cfg.AI.APIKey,
		Timeout:         cfg.AI.Timeout,
		Temperature:     cfg.AI.Temperature,
		TopK:            cfg.AI.TopK,
		TopP:            cfg.AI.TopP,
		MaxOutputTokens: cfg.AI.MaxOutputTokens,
		Selector:        a.selector,
		Context:         pagecontext.ExtractorConfig{MaxDepth: cfg.Context.MaxDepth},
	}, log)

	loader := browser.NewLazyLoader(cfg.Browser, log)
	a.loader = loader
	a.closers = append(a.closers, loader.Close)
	return a, nil
}

// Close releases everything newApp opened, last first.
func (a *app) Close() {
	ctx := context.Background()
	for i := len(a.shutdowns) - 1; i >= 0; i-- {
		if err := a.shutdowns[i](ctx); err != nil {
			a.log.Warn("shutdown", "error", err)
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
