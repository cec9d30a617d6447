package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/codefionn/agentloop/internal/agent"
	"github.com/codefionn/agentloop/internal/compact"
	"github.com/codefionn/agentloop/internal/config"
	"github.com/codefionn/agentloop/internal/llm"
	"github.com/codefionn/agentloop/internal/logger"
	"github.com/codefionn/agentloop/internal/memory"
	"github.com/codefionn/agentloop/internal/permission"
	"github.com/codefionn/agentloop/internal/session"
	"github.com/codefionn/agentloop/internal/tools"
)

const defaultSystemPrompt = `You are a coding assistant operating inside the user's working directory. Use the available tools to read, search, edit and run code. Be concise. Prefer small, verifiable steps.`

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		modelFlag   = flag.String("m", "", "model identifier")
		workDirFlag = flag.String("C", "", "working directory")
		promptFlag  = flag.String("p", "", "run a single prompt and exit")
		modeFlag    = flag.String("mode", "", "permission mode: default, bypass, plan, acceptEdits, dontAsk")
		configFlag  = flag.String("config", "", "config file path")
		resumeFlag  = flag.String("resume", "", "resume a saved session by id")
	)
	flag.Parse()

	configPath := *configFlag
	if configPath == "" {
		configPath = config.DefaultPath()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if *modelFlag != "" {
		cfg.Model = *modelFlag
	}
	if *workDirFlag != "" {
		cfg.WorkingDir = *workDirFlag
	}
	if *modeFlag != "" {
		cfg.PermissionMode = *modeFlag
	}

	if err := logger.Init(logger.ParseLevel(cfg.LogLevel), cfg.LogPath); err != nil {
		return err
	}
	defer logger.Global().Close()

	workDir, err := filepath.Abs(cfg.WorkingDir)
	if err != nil {
		return fmt.Errorf("resolve working directory: %w", err)
	}

	mode, err := permission.ParseMode(cfg.PermissionMode)
	if err != nil {
		return err
	}

	// Live-reloadable bits of the config.
	var stateMu sync.RWMutex
	currentMode := mode
	compactionDisabled := cfg.DisableCompaction
	stopWatch, watchErr := config.Watch(configPath, func(updated *config.Config) {
		newMode, parseErr := permission.ParseMode(updated.PermissionMode)
		if parseErr != nil {
			logger.Warn("ignoring reloaded config: %v", parseErr)
			return
		}
		stateMu.Lock()
		currentMode = newMode
		compactionDisabled = updated.DisableCompaction
		stateMu.Unlock()
	})
	if watchErr != nil {
		logger.Warn("config watching unavailable: %v", watchErr)
	} else {
		defer stopWatch()
	}

	transport, err := buildTransport(cfg.Model)
	if err != nil {
		return err
	}

	storage, err := session.NewStorage(cfg.SessionDir)
	if err != nil {
		return err
	}
	var sess *session.Session
	if *resumeFlag != "" {
		sess, err = storage.Load(*resumeFlag)
		if err != nil {
			return fmt.Errorf("resume session: %w", err)
		}
	} else {
		sess = session.New(workDir)
	}

	approvals := make(chan *permission.ApprovalRequest)
	go serveApprovals(approvals)

	engine := permission.NewEngine(func() permission.Mode {
		stateMu.RLock()
		defer stateMu.RUnlock()
		return currentMode
	}, sess, nil, approvals)
	if cfg.ApprovalTimeoutSeconds > 0 {
		engine.SetApprovalTimeout(time.Duration(cfg.ApprovalTimeoutSeconds) * time.Second)
	}

	store := memory.NewStore(cfg.MemoryPath)
	var fold *compact.MemoryFold
	if !cfg.DisableMemoryFold {
		fold = compact.NewMemoryFold(transport, store)
	}
	cascade := compact.NewCascade(fold, compact.NewSummarizer(transport))

	driver, err := agent.New(agent.Options{
		Transport:    transport,
		Registry:     tools.DefaultRegistry(workDir),
		Permissions:  engine,
		Cascade:      cascade,
		Session:      sess,
		SystemPrompt: defaultSystemPrompt,
		Overrides: llm.BudgetOverrides{
			MaxOutputTokens:    cfg.MaxOutputTokens,
			AutoCompactPercent: cfg.AutoCompactPercent,
		},
		CompactionDisabled: func() bool {
			stateMu.RLock()
			defer stateMu.RUnlock()
			return compactionDisabled
		},
		Callbacks: agent.Callbacks{
			OnText: func(text string) { fmt.Print(text) },
			OnToolStart: func(name string) {
				fmt.Fprintf(os.Stderr, "\n[%s]\n", name)
			},
		},
	})
	if err != nil {
		return err
	}

	defer func() {
		if sess.Dirty() {
			if saveErr := storage.Save(sess); saveErr != nil {
				logger.Warn("could not save session: %v", saveErr)
			}
		}
	}()

	if *promptFlag != "" {
		return runOnce(driver, *promptFlag)
	}
	return runInteractive(driver, sess)
}

// buildTransport picks a provider by model identifier.
func buildTransport(model string) (llm.Transport, error) {
	if strings.HasPrefix(model, "gpt-") || strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3") {
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, errors.New("OPENAI_API_KEY is not set")
		}
		return llm.NewOpenAITransport(apiKey, os.Getenv("OPENAI_BASE_URL"), model)
	}
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, errors.New("ANTHROPIC_API_KEY is not set")
	}
	return llm.NewAnthropicTransport(apiKey, model)
}

func runOnce(driver *agent.Driver, prompt string) error {
	ctx, cancel := signalContext()
	defer cancel()

	_, err := driver.ProcessPrompt(ctx, prompt)
	fmt.Println()
	if errors.Is(err, agent.ErrInterrupted) {
		fmt.Fprintln(os.Stderr, "interrupted")
		return nil
	}
	return err
}

func runInteractive(driver *agent.Driver, sess *session.Session) error {
	fmt.Printf("agentloop session %s (exit with /quit)\n", sess.ID())

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/clear":
			sess.Clear()
			fmt.Println("history cleared")
			continue
		}

		ctx, cancel := signalContext()
		_, err := driver.ProcessPrompt(ctx, line)
		cancel()
		fmt.Println()
		if err != nil {
			if errors.Is(err, agent.ErrInterrupted) {
				fmt.Fprintln(os.Stderr, "interrupted")
				continue
			}
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
}

// signalContext cancels on SIGINT so a running turn can be interrupted
// without killing the process.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// serveApprovals answers permission prompts on the terminal.
func serveApprovals(requests <-chan *permission.ApprovalRequest) {
	reader := bufio.NewReader(os.Stdin)
	for req := range requests {
		fmt.Fprintf(os.Stderr, "\nallow tool %s? [y]es / [n]o / [a]lways: ", req.ToolName)
		line, err := reader.ReadString('\n')
		if err != nil {
			req.Reply <- permission.ApprovalDeny
			continue
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			req.Reply <- permission.ApprovalAllowOnce
		case "a", "always":
			req.Reply <- permission.ApprovalAllowAlways
		default:
			req.Reply <- permission.ApprovalDeny
		}
	}
}
