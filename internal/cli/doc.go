// Package cli provides the interactive gophbeat agent.
//
// It wires the shared application components into a REPL, runs the
// foreground heartbeat engine, listens for messages from the background
// worker and watches connectivity and the settings mirror. Typical flow:
// load settings, start monitoring if enabled, then execute user commands
// until the user exits.
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
// See App, StartOnlineStatusWatcher and runREPL for details.
package cli
