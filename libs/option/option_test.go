package option

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

type echoCommand struct {
	Upper bool `long:"upper"`
	ran   []string
}

func (c *echoCommand) Execute(args []string) error {
	c.ran = args
	return nil
}

func TestParseGlobalsAndCommand(t *testing.T) {
	opts := NewOptions("test")
	cmd := &echoCommand{}
	opts.AddCommand("echo", "echo args", "", cmd)

	rest, err := opts.ParseArgs([]string{"-y", "--what-if", "--log.level", "debug", "--http.port", "9000", "echo", "--upper", "a", "b"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Empty(t, rest)
	assert.True(t, opts.Yes)
	assert.True(t, opts.WhatIf)
	assert.Equal(t, 9000, opts.Http.Port)
	assert.True(t, cmd.Upper)
	assert.Equal(t, []string{"a", "b"}, cmd.ran)

	require.NotNil(t, opts.Log.ConsoleLevel())
	assert.Equal(t, int(zapcore.DebugLevel), *opts.Log.ConsoleLevel())
}

func TestConsoleLevelUnset(t *testing.T) {
	assert.Nil(t, Log{}.ConsoleLevel())
}

func TestHelpAndErrors(t *testing.T) {
	opts := NewOptions("test")
	opts.AddCommand("echo", "echo args", "", &echoCommand{})

	var out bytes.Buffer
	_, err := opts.ParseArgs([]string{"--help"}, &out)
	assert.Equal(t, ErrHelp, err)
	assert.Contains(t, out.String(), "echo")

	_, err = NewOptions("test").ParseArgs([]string{"--log.level", "loud"}, &out)
	assert.True(t, IsFlagError(err))

	opts = NewOptions("test")
	opts.AddCommand("echo", "echo args", "", &echoCommand{})
	_, err = opts.ParseArgs(nil, &out)
	assert.True(t, IsFlagError(err), "a command is required unless optional")

	opts = NewOptions("test")
	opts.AddCommand("echo", "echo args", "", &echoCommand{})
	opts.SubcommandsOptional()
	rest, err := opts.ParseArgs([]string{"--version", "extra"}, &out)
	require.NoError(t, err)
	assert.True(t, opts.Version)
	assert.Equal(t, []string{"extra"}, rest)
}

func TestEnvConfig(t *testing.T) {
	t.Setenv("GPTSHELL_CONFIG", "/tmp/gptshell.toml")
	opts := NewOptions("test")
	_, err := opts.ParseArgs(nil, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/gptshell.toml", opts.ConfigFile)
}
