package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	apperrors "github.com/dshills/codeaudit/internal/errors"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps the status class of a failure onto a process exit code
func exitCode(err error) int {
	if errors.Is(err, context.Canceled) {
		return 130
	}
	switch apperrors.HTTPStatus(apperrors.KindOf(err)) {
	case http.StatusBadRequest:
		return 2
	case http.StatusNotFound:
		return 3
	case http.StatusUnprocessableEntity:
		return 4
	default:
		return 1
	}
}
