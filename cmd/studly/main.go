// Studly is a study assistant backend.
//
// It turns a student's notes into lessons with learning objectives, then
// drives mode-specific study sessions over a streaming chat API: guided
// teaching with quizzes, flashcard generation, rehearsal grading, and
// study songs generated from the material. Configuration is loaded from
// a single YAML file discovered automatically (see
// [config.DefaultSearchPaths]).
//
// Usage:
//
//	studly serve                 Start the API server
//	studly init [dir]            Initialize a working directory with defaults
//	studly ingest <notes.md>     Create a lesson from a markdown file
//	studly ask <question>        Run a single study turn (for testing)
//	studly version               Print version and build information
//	studly -o json version       Output version information as JSON
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	_ "modernc.org/sqlite"

	"github.com/google/uuid"

	"github.com/studlyhq/studly/internal/agent"
	"github.com/studlyhq/studly/internal/api"
	"github.com/studlyhq/studly/internal/buildinfo"
	"github.com/studlyhq/studly/internal/checkpoint"
	"github.com/studlyhq/studly/internal/config"
	"github.com/studlyhq/studly/internal/lesson"
	"github.com/studlyhq/studly/internal/llm"
	"github.com/studlyhq/studly/internal/songgen"
	"github.com/studlyhq/studly/internal/tools"
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run]. This keeps
// os.Exit, os.Stdout, and os.Args out of the application logic so that
// the full startup-to-shutdown lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the studly command. All OS-level
// dependencies are injected as parameters: ctx controls the process
// lifetime, stdout and stderr receive all output, args is os.Args[1:].
// Arguments are parsed by hand rather than with the flag package, whose
// package-level globals interfere with calling run() from parallel
// tests. run returns nil on clean shutdown.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var mode string      // study mode for ask/ingest
	var lessonID string  // lesson for ask
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++ // skip the value
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case args[i] == "-mode" && i+1 < len(args):
			mode = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-mode="):
			mode = strings.TrimPrefix(args[i], "-mode=")
		case args[i] == "-lesson" && i+1 < len(args):
			lessonID = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-lesson="):
			lessonID = strings.TrimPrefix(args[i], "-lesson=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "ingest":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: studly ingest [-mode <mode>] <notes.md>")
		}
		return runIngest(ctx, stdout, configPath, cmdArgs[0], mode)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: studly ask [-mode <mode>] <question>")
		}
		return runAsk(ctx, stdout, configPath, cmdArgs, mode, lessonID)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	// Print fields in a stable order for human readability.
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Studly - Study Assistant Backend")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: studly [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve            Start the API server")
	fmt.Fprintln(w, "  init [dir]       Initialize working directory with defaults (default: .)")
	fmt.Fprintln(w, "  ingest <file>    Create a lesson from a markdown notes file")
	fmt.Fprintln(w, "  ask <question>   Run a single study turn (for testing)")
	fmt.Fprintln(w, "  version          Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -mode <mode>      Study mode for ask/ingest: teach, song, flashcard, rehearse")
	fmt.Fprintln(w, "  -lesson <id>      Lesson to study against (ask)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/studly/config.yaml, /etc/studly/config.yaml")
	return nil
}

// defaultConfig is the starter config written by "studly init".
const defaultConfig = `# Studly configuration
listen:
  address: ""
  port: 8080

openai:
  # api_key: set here or via OPENAI_API_KEY
  base_url: https://api.openai.com/v1
  chat_model: gpt-4o-mini
  embedding_model: text-embedding-3-small

songgen:
  # api_key: set here or via SUNO_API_KEY
  base_url: https://studio-api.suno.ai

agent:
  step_budgets:
    teach: 2
    song: 2
    flashcard: 5
    rehearse: 5

data_dir: ./data
log_level: info
`

// runInit writes a starter config.yaml into dir, refusing to overwrite
// an existing one.
func runInit(stdout io.Writer, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	path := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("refusing to overwrite existing %s", path)
	}

	if err := os.WriteFile(path, []byte(defaultConfig), 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	fmt.Fprintf(stdout, "Wrote %s\n", path)
	fmt.Fprintln(stdout, "Set OPENAI_API_KEY and SUNO_API_KEY, then run: studly serve")
	return nil
}

// stack bundles the application components that serve, ask, and ingest
// share. close releases the underlying database.
type stack struct {
	db          *sql.DB
	lessons     *lesson.Store
	checkpoints *checkpoint.Store
	planner     *lesson.Planner
	client      *llm.OpenAIClient
	songs       *songgen.Client
	loop        *agent.Loop
}

func (s *stack) close() {
	if s.db != nil {
		s.db.Close()
	}
}

// buildStack opens the lesson database and wires the model client, song
// client, tool registry, and agent loop from config.
func buildStack(cfg *config.Config, logger *slog.Logger) (*stack, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory %s: %w", cfg.DataDir, err)
	}

	dbPath := filepath.Join(cfg.DataDir, "studly.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", dbPath, err)
	}

	lessons, err := lesson.NewStore(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("lesson store: %w", err)
	}
	checkpoints, err := checkpoint.NewStore(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("checkpoint store: %w", err)
	}

	client := llm.NewOpenAIClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, logger)
	songs := songgen.NewClient(cfg.SongGen.APIKey, cfg.SongGen.BaseURL, logger,
		songgen.WithPollInterval(cfg.PollInterval()),
		songgen.WithMaxPollAttempts(cfg.SongGen.MaxPollAttempts),
	)

	registry := tools.NewRegistry(tools.Deps{
		Lessons:     lessons,
		Checkpoints: checkpoints,
		Songs:       songs,
		Text:        client,
		Objects:     client,
		TextModel:   cfg.OpenAI.ChatModel,
		ObjectModel: cfg.OpenAI.ObjectModel,
		Logger:      logger,
	})

	return &stack{
		db:          db,
		lessons:     lessons,
		checkpoints: checkpoints,
		planner:     lesson.NewPlanner(client, cfg.OpenAI.ObjectModel, logger),
		client:      client,
		songs:       songs,
		loop:        agent.NewLoop(logger, client, cfg.OpenAI.ChatModel, registry, cfg.Agent.StepBudgets),
	}, nil
}

// runServe handles the "studly serve" subcommand. It is the primary
// operating mode: loads config, opens the database, wires the agent
// loop with all tools, starts the API server, and blocks until a
// shutdown signal arrives.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo, "text")
	logger.Info("starting Studly", "version", buildinfo.Version)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// Reconfigure the logger now that the desired level and format are
	// known. The initial Info-level text logger covers only the startup
	// banner.
	{
		level, _ := config.ParseLogLevel(cfg.LogLevel)
		logger = newLogger(stdout, level, cfg.LogFormat)
	}

	logger.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Listen.Port,
		"chat_model", cfg.OpenAI.ChatModel,
		"object_model", cfg.OpenAI.ObjectModel,
	)

	st, err := buildStack(cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	// Verify the model provider is reachable before accepting traffic.
	// A failed ping is logged but not fatal; the provider may recover.
	if err := st.client.Ping(ctx); err != nil {
		logger.Warn("model provider unreachable at startup", "error", err)
	}

	var embedder llm.Embedder
	if cfg.OpenAI.EmbeddingModel != "" {
		embedder = st.client
	}

	server := api.NewServer(cfg.Listen.Address, cfg.Listen.Port, api.Deps{
		Runner:         st.loop,
		Lessons:        st.lessons,
		Checkpoints:    st.checkpoints,
		Planner:        st.planner,
		Embedder:       embedder,
		Text:           st.client,
		Objects:        st.client,
		TextModel:      cfg.OpenAI.ChatModel,
		ObjectModel:    cfg.OpenAI.ObjectModel,
		EmbeddingModel: cfg.OpenAI.EmbeddingModel,
		TurnTimeout:    cfg.TurnTimeout(),
	}, logger)

	// SIGINT/SIGTERM cancellation flows through the same ctx used by all
	// components.
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received")
		_ = server.Shutdown(context.Background())
	}()

	if err := server.Start(ctx); err != nil {
		if ctx.Err() == nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	logger.Info("Studly stopped")
	return nil
}

// runIngest handles the "studly ingest <notes.md>" subcommand. It
// creates a lesson from a markdown file, generates an embedding when an
// embedding model is configured, and plans learning objectives for
// teach-mode lessons.
func runIngest(ctx context.Context, stdout io.Writer, configPath, filePath, modeArg string) error {
	logger := newLogger(stdout, slog.LevelInfo, "text")

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	mode := lesson.ModeTeach
	if modeArg != "" {
		if mode, err = lesson.ParseMode(modeArg); err != nil {
			return err
		}
	}

	notes, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("read notes: %w", err)
	}
	if strings.TrimSpace(string(notes)) == "" {
		return fmt.Errorf("%s is empty", filePath)
	}

	st, err := buildStack(cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	var embedding []float32
	if cfg.OpenAI.EmbeddingModel != "" {
		embedding, err = st.client.Embed(ctx, cfg.OpenAI.EmbeddingModel, string(notes))
		if err != nil {
			logger.Warn("embedding failed, lesson stored without one", "error", err)
			embedding = nil
		}
	}

	l, err := st.lessons.Create(string(notes), embedding, mode)
	if err != nil {
		return fmt.Errorf("create lesson: %w", err)
	}

	if mode == lesson.ModeTeach {
		objectives, err := st.planner.Plan(ctx, string(notes))
		if err != nil {
			return fmt.Errorf("plan objectives: %w", err)
		}
		cps, err := st.checkpoints.CreateAll(l.ID, objectives)
		if err != nil {
			return fmt.Errorf("create checkpoints: %w", err)
		}
		for _, cp := range cps {
			fmt.Fprintf(stdout, "  %d. %s\n", cp.Order+1, cp.Objective)
		}
		fmt.Fprintf(stdout, "Created %s lesson %s with %d objectives\n", mode, l.ID, len(cps))
		return nil
	}

	fmt.Fprintf(stdout, "Created %s lesson %s\n", mode, l.ID)
	return nil
}

// runAsk handles the "studly ask <question>" subcommand. It runs a
// single agent turn against the most recent context-free session,
// streaming tokens and tool activity to stdout. Useful for smoke tests
// without starting the server.
func runAsk(ctx context.Context, stdout io.Writer, configPath string, args []string, modeArg, lessonArg string) error {
	logger := newLogger(stdout, slog.LevelWarn, "text")

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	mode := lesson.ModeTeach
	if modeArg != "" {
		if mode, err = lesson.ParseMode(modeArg); err != nil {
			return err
		}
	}

	var lessonID uuid.UUID
	if lessonArg != "" {
		if lessonID, err = uuid.Parse(lessonArg); err != nil {
			return fmt.Errorf("invalid lesson id %q: %w", lessonArg, err)
		}
	}

	st, err := buildStack(cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	ctx, cancel := context.WithTimeout(ctx, cfg.TurnTimeout())
	defer cancel()

	question := strings.Join(args, " ")
	req := &agent.Request{
		Messages: []llm.Message{{Role: "user", Content: question}},
		LessonID: lessonID,
		Mode:     mode,
	}

	streamed := false
	resp, err := st.loop.Run(ctx, req, func(ev llm.StreamEvent) {
		switch ev.Kind {
		case llm.KindToken:
			streamed = true
			fmt.Fprint(stdout, ev.Token)
		case llm.KindToolCallStart:
			fmt.Fprintf(stdout, "\n[tool: %s]\n", ev.ToolCall.Function.Name)
		}
	})
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}

	if !streamed && resp.Content != "" {
		fmt.Fprint(stdout, resp.Content)
	}
	fmt.Fprintln(stdout)
	return nil
}

// newLogger creates a structured logger that writes to w at the given
// level and format. Format must be "text" or "json"; any other value
// defaults to text.
func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// loadConfig discovers and loads the config file, returning the config
// and the path it came from.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	return cfg, cfgPath, nil
}
