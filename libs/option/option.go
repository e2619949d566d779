/*
 * Copyright 2022 The Go Authors<36625090@qq.com>. All rights reserved.
 * Use of this source code is governed by a MIT-style
 * license that can be found in the LICENSE file.
 */

package option

import (
	"io"
	"os"

	"github.com/jessevdk/go-flags"
	"go.uber.org/zap/zapcore"
)

type Http struct {
	Path       string `long:"http.path" description:"Path prefix for the HTTP facade"`
	Address    string `long:"http.address" description:"Address for the HTTP facade (default from config, 127.0.0.1)"`
	Port       int    `long:"http.port" default:"0" description:"Port for the HTTP facade (default from config, 8080)"`
	Cors       bool   `long:"http.cors" description:"Support CORS access"`
	RequestLog bool   `long:"http.requestlog" description:"Log HTTP requests"`
}

// Log logging settings
type Log struct {
	Level string `long:"log.level" description:"Console log level (default warn)" choice:"debug" choice:"info" choice:"warn" choice:"error"`
}

// ConsoleLevel returns the zap level for --log.level, or nil when unset.
func (l Log) ConsoleLevel() *int {
	if l.Level == "" {
		return nil
	}
	lvl, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return nil
	}
	v := int(lvl)
	return &v
}

// Options 全局参数选项
type Options struct {
	ConfigFile string `long:"config" env:"GPTSHELL_CONFIG" description:"Config file (TOML)"`
	JSON       bool   `long:"json" description:"Print results as a JSON envelope"`
	Yes        bool   `long:"yes" short:"y" description:"Send requests without asking for confirmation"`
	WhatIf     bool   `long:"what-if" description:"Show the request and its estimated cost without sending it"`
	Log        Log    `group:"log"`
	Http       Http   `group:"http"`
	Version    bool   `long:"version" short:"v" description:"Show the program version"`

	parser *flags.Parser
}

// NewOptions returns options bound to a fresh parser; every parse needs its
// own so values never leak between shell lines.
func NewOptions(name string) *Options {
	var opts Options
	opts.parser = flags.NewNamedParser(name, flags.HelpFlag|flags.PassDoubleDash)
	if _, err := opts.parser.AddGroup("Application Options", "", &opts); err != nil {
		panic(err)
	}
	return &opts
}

func (m *Options) AddCommand(name, short, long string, cmd flags.Commander) {
	if _, err := m.parser.AddCommand(name, short, long, cmd); err != nil {
		panic(err)
	}
}

// SubcommandsOptional lets a bare invocation (e.g. --version) parse.
func (m *Options) SubcommandsOptional() {
	m.parser.SubcommandsOptional = true
}

func (m *Options) WriteHelp(w io.Writer) {
	m.parser.WriteHelp(w)
}

// ParseArgs parses args and runs the selected command, returning the
// arguments no command consumed. Help requests are printed to w and
// reported as ErrHelp.
func (m *Options) ParseArgs(args []string, w io.Writer) ([]string, error) {
	rest, err := m.parser.ParseArgs(args)
	if err == nil {
		return rest, nil
	}
	if flagError, ok := err.(*flags.Error); ok && flagError.Type == flags.ErrHelp {
		_, _ = io.WriteString(w, flagError.Message+"\n")
		return nil, ErrHelp
	}
	return rest, err
}

// Parse 解析 os.Args，帮助信息输出后退出
func (m *Options) Parse() ([]string, error) {
	rest, err := m.ParseArgs(os.Args[1:], os.Stdout)
	if err == ErrHelp {
		os.Exit(0)
	}
	return rest, err
}

// ErrHelp 用户请求了帮助
var ErrHelp = &flags.Error{Type: flags.ErrHelp, Message: "help requested"}

// IsFlagError reports whether err came from argument parsing rather than from
// running a command.
func IsFlagError(err error) bool {
	_, ok := err.(*flags.Error)
	return ok
}
