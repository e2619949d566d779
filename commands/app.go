// Package commands implements the gptshell command line: one go-flags command
// per operation, an interactive shell and the local HTTP facade. All of them
// share a Runtime so the session history survives between shell lines.
package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/stardustagi/gptshell/libs/conf"
	"github.com/stardustagi/gptshell/libs/errors"
	"github.com/stardustagi/gptshell/libs/keystore"
	"github.com/stardustagi/gptshell/libs/logs"
	"github.com/stardustagi/gptshell/libs/option"
	"github.com/stardustagi/gptshell/llm/clients"
	"github.com/stardustagi/gptshell/llm/history"
	"github.com/stardustagi/gptshell/protocol"
	"github.com/stardustagi/gptshell/services"
	"github.com/stardustagi/gptshell/utils"
	"go.uber.org/zap"
)

// Version 由构建时 -ldflags 注入
var Version = "dev"

// Runtime 进程内共享的状态
type Runtime struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
	// Keys 为空时使用 keystore.FileStore
	Keys keystore.Store

	mu         sync.Mutex
	ready      bool
	reader     *bufio.Reader
	prompter   func(string) (string, error)
	secret     func(string) (string, error)
	inShell    bool
	history    *history.History
	metrics    *clients.Metrics
	dispatcher *clients.Dispatcher
	services   *services.Services
	openai     conf.OpenAI
	historyCfg conf.History
	serverCfg  conf.Server
	logger     *zap.Logger
}

func NewRuntime(in io.Reader, out, errOut io.Writer) *Runtime {
	return &Runtime{
		In:      in,
		Out:     out,
		Err:     errOut,
		history: history.New(),
	}
}

// setup 首次执行命令时加载配置并装配依赖，之后的调用直接返回
func (rt *Runtime) setup(opts *option.Options) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.ready {
		return nil
	}
	if err := conf.Init(opts.ConfigFile); err != nil {
		return err
	}
	logCfg, err := utils.Bytes2Struct[logs.LoggerConfig](conf.GetLog())
	if err != nil {
		return errors.Wrap(errors.KindConfig, err, "invalid [log] section")
	}
	logCfg.ConsoleLevel = opts.Log.ConsoleLevel()
	logs.InitWithConfig(logCfg)
	rt.logger = logs.GetLogger("commands")

	if rt.openai, err = conf.GetOpenAI(); err != nil {
		return err
	}
	if rt.historyCfg, err = conf.GetHistory(); err != nil {
		return err
	}
	if rt.serverCfg, err = conf.GetServer(); err != nil {
		return err
	}
	if rt.Keys == nil {
		rt.Keys = keystore.NewFileStore()
	}
	rt.metrics = clients.NewMetrics()
	rt.dispatcher = clients.NewDispatcher(
		clients.WithBaseURL(rt.openai.BaseURL),
		clients.WithTimeout(rt.openai.Timeout.Duration),
		clients.WithLockTimeout(rt.openai.LockTimeout.Duration),
		clients.WithKeyStore(rt.Keys),
		clients.WithMetrics(rt.metrics),
		clients.WithLogger(logs.GetLogger("dispatcher")),
	)
	rt.services = services.New(rt.dispatcher, rt.history, logs.GetLogger("services"))
	rt.ready = true
	rt.logger.Debug("runtime ready",
		logs.String("base_url", rt.openai.BaseURL),
		logs.String("history_dir", rt.historyCfg.Dir))
	return nil
}

// Close 释放连接池
func (rt *Runtime) Close() {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.dispatcher != nil {
		rt.dispatcher.Close()
	}
	logs.Sync()
}

// History is the session history shared by every command of this process.
func (rt *Runtime) History() *history.History { return rt.history }

// readLine 读取一行输入；交互式 shell 中由 liner 接管
func (rt *Runtime) readLine(prompt string) (string, error) {
	if rt.prompter != nil {
		return rt.prompter(prompt)
	}
	if prompt != "" {
		fmt.Fprint(rt.Err, prompt)
	}
	if rt.reader == nil {
		rt.reader = bufio.NewReader(rt.In)
	}
	line, err := rt.reader.ReadString('\n')
	if err != nil && !(err == io.EOF && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// keyPath 未指定时使用配置中的凭据路径
func (rt *Runtime) keyPath(p string) string {
	if p != "" {
		return p
	}
	return rt.openai.CredentialPath
}

// App 命令行入口
type App struct {
	rt *Runtime
}

func NewApp(rt *Runtime) *App {
	return &App{rt: rt}
}

func (a *App) Runtime() *Runtime { return a.rt }

// invocation carries one parse: its global options and context.
type invocation struct {
	ctx  context.Context
	app  *App
	rt   *Runtime
	opts *option.Options
	ran  bool
}

// Run parses args with a fresh parser and executes the selected command.
func (a *App) Run(ctx context.Context, args []string) error {
	opts := option.NewOptions(conf.AppName)
	opts.SubcommandsOptional()
	inv := &invocation{ctx: ctx, app: a, rt: a.rt, opts: opts}
	register(opts, inv)

	rest, err := opts.ParseArgs(args, a.rt.Out)
	if err == option.ErrHelp {
		return nil
	}
	if err != nil {
		return err
	}
	if !inv.ran {
		if len(rest) > 0 {
			return errors.Newf(errors.KindValidation, "unknown command %q", rest[0])
		}
		if opts.Version {
			fmt.Fprintf(a.rt.Out, "%s %s\n", conf.AppName, Version)
			return nil
		}
		opts.WriteHelp(a.rt.Out)
	}
	return nil
}

func register(opts *option.Options, inv *invocation) {
	opts.AddCommand("set-key", "Encrypt and store the API key",
		"Reads the API key (hidden when typed on a terminal) and stores it encrypted at --path.",
		&SetKeyCommand{inv: inv})
	opts.AddCommand("get-key", "Print the stored API key", "Decrypts and prints the API key stored at --path.",
		&GetKeyCommand{inv: inv})
	opts.AddCommand("text", "Text or chat completion",
		"Sends a completion request. --mode chat sends the selected session as chat messages.",
		newTextCommand(inv))
	opts.AddCommand("image", "Image generation, edit or variation", "Creates images from a prompt or an existing PNG.",
		newImageCommand(inv))
	opts.AddCommand("audio", "Audio transcription or translation", "Transcribes or translates an audio file.",
		newAudioCommand(inv))
	opts.AddCommand("history", "Print the session history", "Prints the sessions recorded in this process.",
		&HistoryCommand{inv: inv, Category: "all"})
	opts.AddCommand("backup", "Back up the session history", "Saves each non-empty category to a file or redis.",
		&BackupCommand{inv: inv, Category: "all"})
	opts.AddCommand("restore", "Restore the session history", "Loads a backup into the session history.",
		&RestoreCommand{inv: inv})
	opts.AddCommand("shell", "Interactive shell", "Runs commands interactively with one shared session history.",
		&ShellCommand{inv: inv})
	opts.AddCommand("serve", "Local HTTP facade", "Serves the text, image and audio operations over HTTP.",
		&ServeCommand{inv: inv})
}

// begin marks the command as executed and makes sure the runtime is ready.
func (inv *invocation) begin() error {
	inv.ran = true
	return inv.rt.setup(inv.opts)
}

// confirm 发送前展示请求与预估费用；返回 false 表示不发送
func (inv *invocation) confirm(plan *services.Plan) (bool, error) {
	rt := inv.rt
	if inv.opts.WhatIf {
		if inv.opts.JSON {
			return false, protocol.Write(rt.Out, nil, planData(plan))
		}
		fmt.Fprintln(rt.Out, plan.Describe())
		return false, nil
	}
	if inv.opts.Yes {
		return true, nil
	}
	fmt.Fprintln(rt.Err, plan.Describe())
	answer, err := rt.readLine("Proceed? [y/N] ")
	if err != nil {
		if err == io.EOF {
			return false, nil
		}
		return false, errors.Wrap(errors.KindCancelled, err, "confirmation aborted")
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	}
	color.New(color.FgYellow).Fprintln(rt.Err, "Skipped.")
	return false, nil
}

func planData(plan *services.Plan) protocol.PlanData {
	var files []string
	for _, f := range plan.Body.Files() {
		files = append(files, f.Name+"="+f.Path)
	}
	return protocol.PlanData{
		Task:           plan.Task.String(),
		Endpoint:       plan.Endpoint,
		CredentialPath: plan.CredentialPath,
		EstimatedCost:  plan.Cost,
		Body:           plan.Body,
		Files:          files,
	}
}

// invoke runs the confirm → execute → print flow shared by text, image and audio.
func (inv *invocation) invoke(plan *services.Plan, svc services.Service, after func(data any) error) error {
	ok, err := inv.confirm(plan)
	if err != nil || !ok {
		return err
	}
	resp, err := svc.Execute(inv.ctx, plan)
	if err != nil {
		return inv.fail(err)
	}
	if inv.opts.JSON {
		if err := protocol.Write(inv.rt.Out, nil, resp); err != nil {
			return err
		}
	} else {
		for _, body := range resp.Body {
			fmt.Fprintln(inv.rt.Out, body)
		}
	}
	if after != nil {
		return after(resp)
	}
	return nil
}

// fail 在 --json 模式下同时输出错误信封
func (inv *invocation) fail(err error) error {
	if inv.opts.JSON {
		_ = protocol.Write(inv.rt.Out, err, nil)
	}
	return err
}

// done 输出命令结果：--json 时为信封，否则执行 text
func (inv *invocation) done(data any, text func(w io.Writer)) error {
	if inv.opts.JSON {
		return protocol.Write(inv.rt.Out, nil, data)
	}
	text(inv.rt.Out)
	return nil
}

// PrintError 以红色输出错误；供 main 与 shell 使用
func PrintError(w io.Writer, err error) {
	if err == nil {
		return
	}
	color.New(color.FgRed).Fprintf(w, "Error: %v\n", err)
}

// Main 运行一次命令行并返回退出码
func Main(ctx context.Context, args []string) int {
	rt := NewRuntime(os.Stdin, os.Stdout, os.Stderr)
	defer rt.Close()
	if err := NewApp(rt).Run(ctx, args); err != nil {
		PrintError(rt.Err, err)
		return 1
	}
	return 0
}
