package main

import (
	"fmt"
	"io"
	"os"
)

// Version is set at build time via -ldflags.
// Example: go build -ldflags="-X main.Version=v0.1.0" ./cmd
var Version = "dev"

const usage = `focusflow - a Pomodoro timer shared by every open tab

Usage:
  focusflow <command> [options]

Commands:
  relay start          Start the relay daemon (the background process)
  relay status         Show relay daemon status
  tab                  Run an interactive tab that joins the relay
  sim                  Run several tabs in one process on an in-process bus
  state                Print the persisted timer state
  settings export <file.yaml>  Write the persisted durations to a YAML file
  settings import <file.yaml>  Load durations from a YAML file and broadcast them
Run 'focusflow <command> --help' for more information on a command.
`

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr, os.Stdin))
}

func run(args []string, stdout, stderr io.Writer, stdin io.Reader) int {
	if len(args) < 2 {
		fmt.Fprint(stdout, usage)
		return 0
	}

	switch args[1] {
	case "relay":
		if len(args) < 3 {
			fmt.Fprintln(stdout, "Usage: focusflow relay <start|status>")
			return 1
		}
		switch args[2] {
		case "start":
			return runRelayStart(args[3:], stdout, stderr)
		case "status":
			return runRelayStatus(args[3:], stdout, stderr)
		default:
			fmt.Fprintf(stdout, "Unknown relay command: %s\n", args[2])
			return 1
		}
	case "tab":
		return runTab(args[2:], stdin, stdout, stderr)
	case "sim":
		return runSim(args[2:], stdout, stderr)
	case "state":
		return runState(args[2:], stdout, stderr)
	case "settings":
		if len(args) < 3 {
			fmt.Fprintln(stdout, "Usage: focusflow settings <export|import> <file.yaml>")
			return 1
		}
		switch args[2] {
		case "export":
			return runSettingsExport(args[3:], stdout, stderr)
		case "import":
			return runSettingsImport(args[3:], stdout, stderr)
		default:
			fmt.Fprintf(stdout, "Unknown settings command: %s\n", args[2])
			return 1
		}
	case "--help", "-h", "help":
		fmt.Fprint(stdout, usage)
		return 0
	case "--version", "-v", "version":
		fmt.Fprintf(stdout, "focusflow %s\n", Version)
		return 0
	default:
		fmt.Fprintf(stdout, "Unknown command: %s\n", args[1])
		fmt.Fprint(stdout, usage)
		return 1
	}
}
