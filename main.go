package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/remora-tools/remora/cmd"
)

func main() {
	var err error
	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		select {
		case s := <-interrupt:
			fmt.Println()
			cancel(fmt.Errorf("received %s signal", s))
		case <-ctx.Done():
		}

		// Allow any further SIGTERM or SIGINT to kill process
		signal.Stop(interrupt)
	}()

	// Set up OpenTelemetry.
	otelShutdown, err := setupOTelSDK(ctx)
	if err != nil {
		log.Fatalln(err)
	}

	defer func() {
		if err != nil {
			log.Fatalln(err)
		}
	}()

	// Handle shutdown properly so nothing leaks.
	defer func() {
		err = errors.Join(err, otelShutdown(context.Background()))
	}()

	err = cmd.ExecuteContext(ctx)
}
