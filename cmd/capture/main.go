package main

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tigerroll/capture/internal/cli"
	_ "github.com/tigerroll/capture/pkg/batch/adapter/database/gorm/mysql"
	_ "github.com/tigerroll/capture/pkg/batch/adapter/database/gorm/postgres"
	_ "github.com/tigerroll/capture/pkg/batch/adapter/database/gorm/sqlite"
	"github.com/tigerroll/capture/pkg/batch/support/util/exception"
	"github.com/tigerroll/capture/pkg/batch/support/util/logger"
)

// embeddedConfig is the default configuration, used unless --config names another file.
//
//go:embed resources/application.yaml
var embeddedConfig []byte

// embeddedJSL defines the stages of the reduction job.
//
//go:embed resources/job.yaml
var embeddedJSL []byte

// main is the entry point of the application.
// It handles signals and maps the outcome of the command to the process exit code.
func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Warnf("Received signal '%v'. Attempting to stop the job...", sig)
		cancel()
	}()

	err := cli.Execute(ctx, cli.Resources{Config: embeddedConfig, Job: embeddedJSL})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(exitCode(err))
	}
}

// exitCode is 2 for configuration problems and 1 for every other failure.
func exitCode(err error) int {
	switch exception.KindOf(err) {
	case exception.KindConfiguration, exception.KindUnsupportedConfiguration:
		return 2
	default:
		return 1
	}
}
