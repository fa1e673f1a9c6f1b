package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/artpar/fnhost/internal/shell/client"
)

// Environment variables consulted when the matching flag is empty.
const (
	EnvURL   = "FNHOST_URL"
	EnvToken = "FNHOST_TOKEN"
)

// Dependencies holds what command execution needs from the outside world.
type Dependencies struct {
	Out io.Writer
}

// CLI defines the command-line interface structure parsed by Kong.
type CLI struct {
	URL     string        `name:"url" help:"fnhost server URL (default $FNHOST_URL or http://localhost:8080)"`
	Token   string        `name:"token" help:"API token (default $FNHOST_TOKEN)"`
	Timeout time.Duration `name:"timeout" default:"10s" help:"Request timeout"`
	EnvFile string        `name:"env-file" help:"Path to .env file"`

	Validate  ValidateCmd  `cmd:"" help:"Validate a function file without contacting the server"`
	Submit    SubmitCmd    `cmd:"" help:"Validate a function file and save it as a draft or deploy it"`
	List      ListCmd      `cmd:"" help:"List functions"`
	Get       GetCmd       `cmd:"" help:"Show one function"`
	Delete    DeleteCmd    `cmd:"" help:"Delete a function"`
	TestInput TestInputCmd `cmd:"" name:"test-input" help:"Check a JSON payload against a function's input schema"`
	Version   VersionCmd   `cmd:"" help:"Show version information"`
}

type (
	ValidateCmd struct {
		File string `short:"f" required:"" help:"Function file (YAML or JSON)"`
	}
	SubmitCmd struct {
		File   string `short:"f" required:"" help:"Function file (YAML or JSON)"`
		ID     string `name:"id" help:"Update this function instead of creating a new one"`
		Intent string `short:"i" enum:"draft,deploy" default:"draft" help:"Submission intent (draft or deploy)"`
	}
	ListCmd struct {
		Page   int    `help:"Page number" default:"1"`
		Limit  int    `help:"Page size" default:"10"`
		Search string `short:"s" help:"Case-insensitive name filter"`
	}
	GetCmd struct {
		ID string `arg:"" help:"Function ID"`
	}
	DeleteCmd struct {
		ID string `arg:"" help:"Function ID"`
	}
	TestInputCmd struct {
		ID   string `arg:"" help:"Function ID"`
		File string `short:"f" required:"" help:"JSON payload file"`
	}
	VersionCmd struct{}
)

// Run parses args, dispatches the command and returns the exit code.
func Run(args []string, deps Dependencies) int {
	out := deps.Out
	if out == nil {
		out = os.Stdout
	}

	if len(args) == 0 {
		return runNoArgs(out)
	}

	cli := CLI{}
	parser, err := kong.New(&cli,
		kong.Name("fnctl"),
		kong.Description("Validate and submit function configurations."),
		kong.Writers(out, out),
	)
	if err != nil {
		return exitWithError(out, err)
	}

	ctx, err := parser.Parse(args)
	if err != nil {
		return exitWithError(out, err)
	}

	// Load environment file if provided or if .env exists in current directory
	if cli.EnvFile != "" {
		if err := godotenv.Load(cli.EnvFile); err != nil {
			warn(out, fmt.Sprintf("failed to load env file %s: %v", cli.EnvFile, err))
		}
	} else if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			warn(out, fmt.Sprintf("failed to load .env: %v", err))
		}
	}

	if exitCode, handled := dispatchCommand(ctx.Command(), cli, out); handled {
		return exitCode
	}

	warn(out, "unknown command")
	return 1
}

type commandHandler func(CLI, io.Writer) int

func dispatchCommand(command string, cli CLI, out io.Writer) (int, bool) {
	handlers := map[string]commandHandler{
		"validate":        runValidate,
		"submit":          runSubmit,
		"list":            runList,
		"get <id>":        runGet,
		"delete <id>":     runDelete,
		"test-input <id>": runTestInput,
		"version":         runVersion,
	}

	if handler, ok := handlers[command]; ok {
		return handler(cli, out), true
	}
	return 1, false
}

// apiClient builds a client from flags, falling back to the environment.
func (c CLI) apiClient() *client.Client {
	cfg := client.DefaultConfig()
	if url := firstNonEmpty(c.URL, os.Getenv(EnvURL)); url != "" {
		cfg.BaseURL = url
	}
	cfg.Token = firstNonEmpty(c.Token, os.Getenv(EnvToken))
	if c.Timeout > 0 {
		cfg.Timeout = c.Timeout
	}
	return client.New(cfg)
}

func runNoArgs(out io.Writer) int {
	writeLine(out, "Usage:")
	writeLine(out, "  fnctl validate -f function.yaml")
	writeLine(out, "  fnctl submit -f function.yaml [--intent deploy] [--id fn-123]")
	writeLine(out, "  fnctl list | get <id> | delete <id> | test-input <id> -f payload.json")
	writeLine(out, "")
	writeLine(out, "Try: fnctl --help")
	return 0
}

func runVersion(_ CLI, out io.Writer) int {
	writeLine(out, "fnctl "+Version)
	return 0
}

// =============================================================================
// Output
// =============================================================================

func writeLine(out io.Writer, line string) {
	_, _ = io.WriteString(out, line+"\n")
}

func warn(out io.Writer, msg string) {
	writeLine(out, "! "+msg)
}

func exitWithError(out io.Writer, err error) int {
	writeLine(out, "✗ "+err.Error())
	return 1
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
