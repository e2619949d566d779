package commands

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/stardustagi/gptshell/libs/errors"
	"github.com/stardustagi/gptshell/libs/logs"
	"golang.org/x/term"
)

// SetKeyCommand set-key
type SetKeyCommand struct {
	Path string `long:"path" description:"Credential file (default from config or $OPENAI_APIKEY)"`
	Key  string `long:"key" description:"API key; read from the terminal when omitted"`

	inv *invocation
}

func (c *SetKeyCommand) Execute(args []string) error {
	if err := c.inv.begin(); err != nil {
		return err
	}
	rt := c.inv.rt
	key := c.Key
	if key == "" && len(args) > 0 {
		key = args[0]
	}
	if key == "" {
		var err error
		if key, err = rt.readSecret("API key: "); err != nil {
			return c.inv.fail(errors.Wrap(errors.KindValidation, err, "failed to read the api key"))
		}
	}
	path := rt.keyPath(c.Path)
	if err := rt.Keys.Encrypt(path, strings.TrimSpace(key)); err != nil {
		return c.inv.fail(err)
	}
	// 已缓存的客户端仍持有旧 token
	if rt.dispatcher != nil {
		if err := rt.dispatcher.Forget(path); err != nil {
			return c.inv.fail(err)
		}
	}
	rt.logger.Info("api key stored", logs.String("path", path))
	return c.inv.done(map[string]string{"path": path}, func(w io.Writer) {
		color.New(color.FgGreen).Fprintf(w, "API key saved to %s\n", path)
	})
}

// GetKeyCommand get-key
type GetKeyCommand struct {
	Path string `long:"path" description:"Credential file (default from config or $OPENAI_APIKEY)"`

	inv *invocation
}

func (c *GetKeyCommand) Execute(_ []string) error {
	if err := c.inv.begin(); err != nil {
		return err
	}
	rt := c.inv.rt
	key, err := rt.Keys.Decrypt(rt.keyPath(c.Path))
	if err != nil {
		return c.inv.fail(err)
	}
	if c.inv.opts.JSON {
		return c.inv.done(map[string]string{"key": key}, nil)
	}
	fmt.Fprintln(rt.Out, key)
	return nil
}

// readSecret 终端上不回显输入，否则按行读取
func (rt *Runtime) readSecret(prompt string) (string, error) {
	if rt.secret != nil {
		return rt.secret(prompt)
	}
	if f, ok := rt.In.(*os.File); ok && rt.prompter == nil && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(rt.Err, prompt)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(rt.Err)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	return rt.readLine(prompt)
}
