package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"kanban/api/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		reportError(os.Stderr, err)
		os.Exit(1)
	}
}

// reportError writes domain errors as JSON so scripts can branch on the code.
func reportError(w io.Writer, err error) {
	var domainErr *app.DomainError
	if !errors.As(err, &domainErr) {
		fmt.Fprintln(w, "error:", err)
		return
	}
	payload := map[string]any{
		"error": map[string]any{
			"code":    domainErr.Code,
			"message": domainErr.Message,
			"details": domainErr.Details,
		},
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

func printJSON(w io.Writer, value any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}
