package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface is the command surface the REPL needs. The real App satisfies it;
// tests provide a lightweight stub.
type execIface interface {
	RecordActivity(ctx context.Context)
	Status(ctx context.Context) error
	Enable(ctx context.Context) error
	Disable(ctx context.Context) error
	Config(ctx context.Context) error
	Test(ctx context.Context) error
	Logs(ctx context.Context) error
	Notifications(ctx context.Context, on bool) error
	Push(ctx context.Context, on bool) error
}

const helpText = "Available commands: status, enable, disable, config, test, logs, " +
	"notifications on|off, push on|off, exit"

// runREPL reads commands line by line and dispatches them to a. Every line,
// even an empty one, counts as user activity. The loop exits on EOF, when
// ctx is done or when the user types "exit" or "quit".
//
// Errors returned by command handlers are printed and otherwise ignored.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		if ctx.Err() != nil {
			return
		}
		printlnFn(fmt.Sprintf("gophbeat %s> ", statusFn()))
		line, err := reader.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || line == "") {
			return
		}
		a.RecordActivity(ctx)

		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		var cmdErr error
		switch cmd {
		case "help":
			printlnFn(helpText)
		case "status":
			cmdErr = a.Status(ctx)
		case "enable":
			cmdErr = a.Enable(ctx)
		case "disable":
			cmdErr = a.Disable(ctx)
		case "config":
			cmdErr = a.Config(ctx)
		case "test":
			cmdErr = a.Test(ctx)
		case "logs":
			cmdErr = a.Logs(ctx)
		case "notifications", "push":
			on, ok := parseToggle(args)
			if !ok {
				printlnFn(fmt.Sprintf("Usage: %s on|off", cmd))
				continue
			}
			if cmd == "push" {
				cmdErr = a.Push(ctx, on)
			} else {
				cmdErr = a.Notifications(ctx, on)
			}
		case "exit", "quit":
			printlnFn("Bye!")
			return
		default:
			printlnFn("Unknown command:", cmd)
		}

		if cmdErr != nil {
			printlnFn(errorColor.Sprint("Error: " + cmdErr.Error()))
		}
	}
}

func parseToggle(args []string) (on bool, ok bool) {
	if len(args) != 1 {
		return false, false
	}
	switch strings.ToLower(args[0]) {
	case "on":
		return true, true
	case "off":
		return false, true
	}
	return false, false
}
