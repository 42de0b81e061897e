package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-errors/errors"
	"github.com/integrii/flaggy"
	"github.com/sirupsen/logrus"

	"github.com/brainwires/aegis-wrap/pkg/config"
	"github.com/brainwires/aegis-wrap/pkg/dashboard"
	aegislog "github.com/brainwires/aegis-wrap/pkg/log"
	"github.com/brainwires/aegis-wrap/pkg/pool"
	"github.com/brainwires/aegis-wrap/pkg/rpcserver"
	"github.com/brainwires/aegis-wrap/pkg/state"
	"github.com/brainwires/aegis-wrap/pkg/supervisor"
	"github.com/brainwires/aegis-wrap/pkg/version"
)

func main() {
	version.Resolve()

	args := os.Args[1:]
	if len(args) == 0 || args[0] == "--help" || args[0] == "-h" {
		printUsage()
		os.Exit(usageExitCode(args))
	}
	if args[0] == "--version" {
		printVersionBanner()
		os.Exit(0)
	}

	projectDir, err := os.Getwd()
	if err != nil {
		log.Fatal(err.Error())
	}

	appConfig, err := config.NewAppConfig("aegis-wrap", version.Version, version.Commit, version.Date, version.BuildSource, os.Getenv("DEBUG") == "TRUE", projectDir)
	if err != nil {
		log.Fatal(err.Error())
	}
	logger := aegislog.NewLogger(appConfig, strconv.Itoa(os.Getpid()))

	switch args[0] {
	case "--mcp-server":
		err = runMCPServer(appConfig, logger)
	case "--dashboard":
		err = runDashboard(args[1:], logger)
	default:
		err = runSupervisor(appConfig, logger, args)
	}

	if err != nil {
		newErr := errors.Wrap(err, 0)
		stackTrace := newErr.ErrorStack()
		logger.Error(stackTrace)
		log.Fatalf("aegis-wrap: %s", err)
	}
}

func usageExitCode(args []string) int {
	if len(args) == 0 {
		return 1
	}
	return 0
}

func printUsage() {
	fmt.Println(`aegis-wrap — a supervisor for interactive coding-agent CLIs

Usage:
  aegis-wrap <agent> [agent args...]   launch and supervise an agent (claude, cursor, aider)
  aegis-wrap --mcp-server              run the JSON-RPC control server on stdio
  aegis-wrap --dashboard [pid]         attach a read-only status viewer
  aegis-wrap --version                print version information
  aegis-wrap --help                    print this message

Options (recognised before forwarding the remainder to the agent):
  --keep-root                 do not drop root privileges before exec
  --no-inject-mcp             do not inject the control server into .mcp.json
  --netmon[=preload|=netns]   enable outbound network observation
  --watchdog-timeout=<secs>   override the unresponsiveness heartbeat timeout
  --no-watchdog               disable the health watchdog entirely`)
}

func printVersionBanner() {
	flaggy.SetName("aegis-wrap")
	flaggy.SetDescription("A supervisor for interactive coding-agent CLIs")
	flaggy.SetVersion(version.Info())
	flaggy.Parse()
}

func runMCPServer(cfg *config.AppConfig, logger *logrus.Entry) error {
	reg := cfg.AgentRegistry
	p := pool.New(8, reg, logger)

	srv := rpcserver.New(context.Background(), logger, p, os.Getpid(), false)
	return srv.Serve(os.Stdin, os.Stdout)
}

func runDashboard(rest []string, logger *logrus.Entry) error {
	pid := os.Getpid()
	if len(rest) > 0 {
		parsed, err := strconv.Atoi(rest[0])
		if err != nil {
			return fmt.Errorf("invalid dashboard pid %q: %w", rest[0], err)
		}
		pid = parsed
	} else {
		// No pid given: attach to the most recently started supervisor.
		prefix := fmt.Sprintf("/tmp/%s-state-", config.ProductPrefix)
		matches, _ := filepath.Glob(prefix + "*")
		var newest int64 = -1
		for _, m := range matches {
			candidate, err := strconv.Atoi(strings.TrimPrefix(m, prefix))
			if err != nil {
				continue
			}
			if doc, err := state.Read(candidate); err == nil && doc.StartedAtUnix > newest {
				pid, newest = candidate, doc.StartedAtUnix
			}
		}
	}
	return dashboard.New(pid, logger).Run()
}

// runSupervisor parses the recognised option flags living anywhere
// after the agent name and forwards every other trailing token to the
// agent verbatim, per spec.md §6 ("everything after the agent name
// that is not one of the recognised options is forwarded to the
// agent"). This is hand-rolled rather than routed through flaggy: the
// forwarding contract requires tolerating and passing through tokens
// flaggy would otherwise reject as unknown flags.
func runSupervisor(cfg *config.AppConfig, logger *logrus.Entry, args []string) error {
	agentName := args[0]
	if _, ok := cfg.AgentRegistry[agentName]; !ok {
		return fmt.Errorf("unknown agent %q (known: claude, cursor, aider)", agentName)
	}

	opts := supervisor.Options{
		AgentName:  agentName,
		ProjectDir: cfg.ProjectDir,
		InjectMCP:  true,
		Watchdog:   cfg.Watchdog,
	}

	var forwarded []string
	for _, arg := range args[1:] {
		switch {
		case arg == "--keep-root":
			opts.KeepRoot = true
		case arg == "--no-inject-mcp":
			opts.InjectMCP = false
		case arg == "--no-watchdog":
			opts.NoWatchdog = true
		case arg == "--netmon":
			opts.NetmonMode = config.AutoMode(opts.KeepRoot)
		case strings.HasPrefix(arg, "--netmon="):
			opts.NetmonMode = config.NetmonMode(strings.TrimPrefix(arg, "--netmon="))
		case strings.HasPrefix(arg, "--watchdog-timeout="):
			secs, err := strconv.ParseUint(strings.TrimPrefix(arg, "--watchdog-timeout="), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid --watchdog-timeout value: %w", err)
			}
			opts.Watchdog.HeartbeatTimeout = time.Duration(secs) * time.Second
		default:
			forwarded = append(forwarded, arg)
		}
	}
	opts.AgentArgs = forwarded
	if opts.NoWatchdog {
		opts.Watchdog.Enabled = false
	}

	sup, err := supervisor.New(cfg, logger, opts)
	if err != nil {
		return err
	}

	code, err := sup.Run(context.Background())
	if err != nil {
		return err
	}
	if code != 0 {
		os.Exit(code)
	}
	return nil
}

