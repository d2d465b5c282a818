package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/datainsight/datainsight/internal/cli/datainsightctl"
)

func main() {
	timeout := parseDurationWithDefault(strings.TrimSpace(os.Getenv("DATAINSIGHT_CLI_TIMEOUT")), 5*time.Minute)
	options := datainsightctl.Options{
		BaseURL:  envOr("DATAINSIGHT_API_URL", "http://localhost:8080"),
		Passcode: strings.TrimSpace(os.Getenv("DATAINSIGHT_PASSCODE")),
		Timeout:  timeout,
		Stdout:   os.Stdout,
		Stderr:   os.Stderr,
	}

	code := datainsightctl.Run(context.Background(), os.Args[1:], options)
	os.Exit(code)
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseDurationWithDefault(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid DATAINSIGHT_CLI_TIMEOUT %q; using %s\n", raw, fallback)
		return fallback
	}
	return parsed
}
