// Package cli parses the run mode and renders usage for the multi-mode binary.
package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"
)

const (
	ModeOrder    = "order-service"
	ModeTrack    = "tracking-service"
	ModeDispatch = "dispatch-worker"
	ModeNotify   = "notification-subscriber"
)

// isKnownMode checks if the provided mode name is known.
func isKnownMode(s string) (string, bool) {
	switch s {
	case ModeOrder, "order":
		return ModeOrder, true
	case ModeTrack, "tracking", "track":
		return ModeTrack, true
	case ModeDispatch, "dispatch", "worker":
		return ModeDispatch, true
	case ModeNotify, "notify":
		return ModeNotify, true
	default:
		return "", false
	}
}

// ParseMode supports:
//
//	--mode=<value>
//	<value> (subcommand shorthand), e.g., `order-service --port=3001`
func ParseMode(args []string) (string, []string, error) {
	var mode string
	var out []string

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if strings.HasPrefix(arg, "--mode=") {
			mode = strings.TrimPrefix(arg, "--mode=")
			continue
		}

		if mode == "" {
			if m, ok := isKnownMode(arg); ok {
				mode = m
				continue
			}
		}
		out = append(out, arg)
	}

	if mode == "" {
		return "", out, nil
	}

	if m, ok := isKnownMode(mode); ok {
		return m, out, nil
	}
	return "", out, fmt.Errorf("unknown mode: %q", mode)
}

// PrintUsage prints the usage information with examples.
func PrintUsage(w io.Writer) {
	fmt.Fprintln(w, `Usage:
  ./orderflow --mode=<service> [flags]

Services (modes):
  order-service              HTTP API for placing orders
  dispatch-worker            RabbitMQ consumer that advances orders through the lifecycle
  tracking-service           HTTP API for order status, history, and workers
  notification-subscriber    RabbitMQ subscriber that prints status notifications

Examples:
  ./orderflow order-service --port=3000
  ./orderflow dispatch-worker --worker-name=worker-1 --channels=urgent,express
  ./orderflow tracking-service --port=3002
  ./orderflow notification-subscriber`)
}

// AttachUsage sets a mode-specific usage function on the flag set.
func AttachUsage(fs *flag.FlagSet, mode string) {
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage of %s:\n", mode)
		fs.PrintDefaults()
	}
}
