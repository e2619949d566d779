package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/stardustagi/gptshell/commands"
)

func main() {
	// Ctrl+C 取消进行中的请求
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := commands.Main(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}
