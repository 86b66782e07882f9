package cmd

import (
	"context"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/abiosoft/readline"
	"github.com/fatih/color"

	"github.com/indielab/kaish/core"
	"github.com/indielab/kaish/core/interp"
)

var (
	promptOK   = color.New(color.FgGreen, color.Bold)
	promptFail = color.New(color.FgRed, color.Bold)
)

// runREPL reads lines until EOF or an exit statement, executing each as
// one top-level input. Ctrl-C cancels the running command, not the
// shell.
func runREPL(k *core.Kernel) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:      promptOK.Sprint("kaish> "),
		HistoryFile: "",
		Stdin:       readline.NewCancelableStdin(os.Stdin),
		Stdout:      os.Stdout,
		Stderr:      os.Stderr,
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	lastCode := 0
	for {
		if lastCode == 0 {
			rl.SetPrompt(promptOK.Sprint("kaish> "))
		} else {
			rl.SetPrompt(promptFail.Sprintf("kaish[%d]> ", lastCode))
		}

		line, err := rl.Readline()
		switch {
		case err == io.EOF:
			return nil
		case err == readline.ErrInterrupt:
			continue
		case err != nil:
			return err
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		res := runInterruptible(k, line)
		lastCode = res.Code
		if isExit(line) {
			os.Exit(res.Code)
		}
	}
}

// runInterruptible executes one input with SIGINT wired to cancellation.
func runInterruptible(k *core.Kernel, input string) *interp.ExecResult {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return k.RunStreaming(ctx, input, os.Stdout, os.Stderr)
}

// isExit reports whether the input is a bare exit statement, which ends
// the REPL rather than just producing a code.
func isExit(line string) bool {
	fields := strings.Fields(strings.TrimSpace(line))
	return len(fields) >= 1 && fields[0] == "exit"
}
