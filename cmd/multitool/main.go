// Command multitool is the CLI for the multi-tool assistant.
//
// Usage:
//
//	multitool chat --config multitool.yaml
//	multitool ask "What is Positive doo?"
//	multitool serve --address :8080
//	multitool index positive passages.jsonl
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/positive-doo/multitool/pkg/config"
	"github.com/positive-doo/multitool/pkg/version"
)

// CLI defines the command-line interface.
type CLI struct {
	Chat     ChatCmd     `cmd:"" help:"Start an interactive chat."`
	Ask      AskCmd      `cmd:"" help:"Ask a single question and print the answer."`
	Serve    ServeCmd    `cmd:"" help:"Start the HTTP API server."`
	Index    IndexCmd    `cmd:"" help:"Load JSONL passages into a vector index namespace."`
	Validate ValidateCmd `cmd:"" help:"Validate configuration file."`
	Version  VersionCmd  `cmd:"" help:"Show version information."`

	Config    string `short:"c" help:"Path to config file." type:"path" env:"MULTITOOL_CONFIG"`
	LogLevel  string `help:"Log level (debug, info, warn, error)."`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple, verbose, json or text)."`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println(version.Get())
	return nil
}

func main() {
	_ = config.LoadEnvFiles()

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("multitool"),
		kong.Description("Multi-tool assistant: retrieval, tabular QA and web search behind one ReAct router."),
		kong.UsageOnError(),
	)

	// Config file logging settings are applied later, when no flag or env overrides.
	if err := initLogger(cli.LogLevel, cli.LogFile, cli.LogFormat, nil); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer closeLogger()

	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
