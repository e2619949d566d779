package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-shellwords"
	"github.com/peterh/liner"
	"github.com/stardustagi/gptshell/libs/conf"
	"github.com/stardustagi/gptshell/libs/errors"
	"github.com/stardustagi/gptshell/libs/logs"
)

const shellPrompt = conf.AppName + "> "

// ShellCommand shell
type ShellCommand struct {
	NoHistory bool `long:"no-history" description:"Do not keep line history between shells"`

	inv *invocation
}

func (c *ShellCommand) Execute(_ []string) error {
	if err := c.inv.begin(); err != nil {
		return err
	}
	rt := c.inv.rt
	if rt.inShell {
		return errors.New(errors.KindState, "already inside a shell")
	}

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	historyFile := filepath.Join(conf.DataDir(), "shell_history")
	if !c.NoHistory {
		if f, err := os.Open(historyFile); err == nil {
			_, _ = line.ReadHistory(f)
			f.Close()
		}
		defer saveLineHistory(line, historyFile)
	}

	rt.prompter = line.Prompt
	rt.secret = line.PasswordPrompt
	defer func() {
		rt.prompter = nil
		rt.secret = nil
	}()

	color.New(color.FgCyan).Fprintf(rt.Err, "%s %s, type help for commands and exit to quit\n", conf.AppName, Version)
	return c.repl(func() (string, error) {
		input, err := line.Prompt(shellPrompt)
		if err == nil && strings.TrimSpace(input) != "" {
			line.AppendHistory(input)
		}
		return input, err
	})
}

// repl reads lines until exit, EOF or Ctrl+C and runs each as a command
// against the shared runtime. Command errors are printed, not returned.
func (c *ShellCommand) repl(next func() (string, error)) error {
	rt := c.inv.rt
	rt.inShell = true
	defer func() { rt.inShell = false }()

	for {
		input, err := next()
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Fprintln(rt.Err)
				return nil
			}
			return errors.Wrap(errors.KindState, err, "failed to read input")
		}
		input = strings.TrimSpace(input)
		switch input {
		case "":
			continue
		case "exit", "quit":
			return nil
		case "help", "?":
			input = "--help"
		}
		args, err := shellwords.Parse(input)
		if err != nil {
			PrintError(rt.Err, errors.Wrap(errors.KindValidation, err, "invalid command line"))
			continue
		}
		if len(args) > 0 && args[0] == conf.AppName {
			args = args[1:]
		}
		if err := c.inv.app.Run(c.inv.ctx, args); err != nil {
			rt.logger.Debug("shell command failed", logs.String("line", input), logs.ErrorInfo(err))
			PrintError(rt.Err, err)
		}
		if c.inv.ctx.Err() != nil {
			return nil
		}
	}
}

func saveLineHistory(line *liner.State, path string) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = line.WriteHistory(f)
}
