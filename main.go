package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/yui-915/cargo-quad-apk/internal/quadapk"
)

func main() {
	// When cargo re-invokes this binary as RUSTC_WRAPPER the process
	// never returns from here.
	quadapk.MaybeRunHook()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		cancel()
		// A second interrupt forces an immediate exit.
		<-sigs
		os.Exit(130)
	}()

	if err := quadapk.Execute(ctx); err != nil {
		os.Exit(1)
	}
}
