package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/positive-doo/multitool/pkg/agent"
	"github.com/positive-doo/multitool/pkg/session"
	"github.com/positive-doo/multitool/pkg/utils"
)

// ChatCmd runs the interactive REPL.
type ChatCmd struct {
	Dataset string `help:"CSV or XLSX file to load before the first question." type:"existingfile"`
	Verbose bool   `short:"v" help:"Print the router's reasoning as it streams."`
}

func (c *ChatCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess, closeFn, err := cli.newSession(c.Dataset)
	if err != nil {
		return err
	}
	defer closeFn()

	return runREPL(ctx, os.Stdin, os.Stdout, sess, c.Verbose)
}

// AskCmd answers one question.
type AskCmd struct {
	Question string `arg:"" help:"Question to ask."`
	Dataset  string `help:"CSV or XLSX file for the CSV search tool." type:"existingfile"`
	Verbose  bool   `short:"v" help:"Print the router's reasoning as it streams."`
}

func (c *AskCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess, closeFn, err := cli.newSession(c.Dataset)
	if err != nil {
		return err
	}
	defer closeFn()

	res, err := sess.Stream(ctx, c.Question, printEvents(os.Stdout, c.Verbose))
	if err != nil {
		return err
	}
	fmt.Println(res.Answer)
	return nil
}

func (cli *CLI) newSession(dataset string) (*session.Session, func(), error) {
	cfg, err := cli.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	rt, err := newApp(cfg)
	if err != nil {
		return nil, nil, err
	}
	mgr, err := rt.manager()
	if err != nil {
		rt.Close()
		return nil, nil, err
	}
	sess, err := mgr.Create()
	if err != nil {
		rt.Close()
		return nil, nil, err
	}
	closeFn := func() {
		_ = mgr.Close()
		_ = rt.Close()
	}

	if dataset != "" {
		if err := sess.LoadDatasetFile(dataset); err != nil {
			closeFn()
			return nil, nil, err
		}
	}
	return sess, closeFn, nil
}

const replHelp = `Commands:
  /new                 start a new chat (the dataset is kept)
  /upload <file>       load a CSV or XLSX file for CSV search
  /set <key> <value>   change a session setting
  /settings            show session settings
  /download <file>     save the transcript, newest first
  /quit                end the session`

func runREPL(ctx context.Context, in io.Reader, out io.Writer, sess *session.Session, verbose bool) error {
	scanner := bufio.NewScanner(in)

	fmt.Fprintln(out, "Ask a question, or /help for commands.")
	for {
		fmt.Fprint(out, "\nYou: ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			quit, err := handleCommand(out, sess, input)
			if err != nil {
				fmt.Fprintf(out, "Error: %v\n", err)
			}
			if quit {
				return nil
			}
			continue
		}

		res, err := sess.Stream(ctx, input, printEvents(out, verbose))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(out, "Error: %v\n", err)
			continue
		}
		fmt.Fprintf(out, "\nAssistant: %s\n", strings.TrimRight(res.Answer, "\n"))
	}
}

func handleCommand(out io.Writer, sess *session.Session, input string) (bool, error) {
	fields := strings.Fields(input)
	arg := strings.TrimSpace(strings.TrimPrefix(input, fields[0]))

	switch fields[0] {
	case "/quit", "/exit":
		fmt.Fprintln(out, "Bye.")
		return true, nil
	case "/help":
		fmt.Fprintln(out, replHelp)
	case "/new":
		sess.Clear()
		fmt.Fprintln(out, "New chat started.")
	case "/upload":
		if arg == "" {
			return false, fmt.Errorf("usage: /upload <file>")
		}
		if err := sess.LoadDatasetFile(arg); err != nil {
			return false, err
		}
		fmt.Fprintf(out, "Loaded %s.\n", sess.DatasetName())
	case "/set":
		if len(fields) < 3 {
			return false, fmt.Errorf("usage: /set <key> <value>")
		}
		value := strings.TrimSpace(strings.TrimPrefix(arg, fields[1]))
		if err := sess.UpdateSettings(func(s *session.Settings) error { return s.Set(fields[1], value) }); err != nil {
			return false, err
		}
		fmt.Fprintf(out, "%s updated.\n", fields[1])
	case "/settings":
		for _, line := range sess.Settings().Lines() {
			fmt.Fprintln(out, line)
		}
		if name := sess.DatasetName(); name != "" {
			fmt.Fprintf(out, "dataset: %s\n", name)
		}
	case "/download":
		if arg == "" {
			return false, fmt.Errorf("usage: /download <file>")
		}
		if err := utils.WriteFileAtomic(arg, []byte(sess.TranscriptText())); err != nil {
			return false, err
		}
		fmt.Fprintf(out, "Transcript saved to %s.\n", arg)
	default:
		return false, fmt.Errorf("unknown command %s (try /help)", fields[0])
	}
	return false, nil
}

// printEvents shows tool calls, and with verbose the raw reasoning tokens.
func printEvents(out io.Writer, verbose bool) func(agent.Event) {
	return func(ev agent.Event) {
		switch ev.Type {
		case agent.EventToken:
			if verbose {
				fmt.Fprint(out, ev.Text)
			}
		case agent.EventAction:
			if verbose {
				fmt.Fprintln(out)
			}
			fmt.Fprintf(out, "→ %s: %s\n", ev.Tool, ev.Input)
		}
	}
}
