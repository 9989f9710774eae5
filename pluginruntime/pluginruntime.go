// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2022, Unikraft GmbH and The KraftKit Authors.
// Licensed under the BSD-3-Clause License (the "License").
// You may not use this file except in compliance with the License.

// Package pluginruntime is the entry point every compiled plugin's
// main() calls. It performs the five startup steps of a plugin's
// lifecycle (duplicate descriptors, redirect stdout to stderr, disable
// buffering, instantiate, loop) and speaks the framed wire protocol on
// the duplicated descriptors rather than the process's visible
// stdin/stdout, so a plugin author's own fmt.Println calls cannot
// corrupt the protocol stream.
package pluginruntime

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"

	"pluginhost.sh/pherr"
	"pluginhost.sh/pluginapi"
	"pluginhost.sh/wire"
)

// Main is called from a plugin's func main(). It never returns: it
// exits the process with 0 on a clean EOF and no reported error, 1
// otherwise.
func Main(plugin any) {
	if err := run(plugin); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(0)
}

// run implements spec.md §4.F's five startup steps and message loop.
func run(plugin any) error {
	in, err := duplicateStdin()
	if err != nil {
		return fmt.Errorf("duplicating stdin: %w", err)
	}

	out, err := redirectStdout()
	if err != nil {
		return fmt.Errorf("redirecting stdout: %w", err)
	}

	// Step 3: os.File.Write issues one syscall per call with no internal
	// buffering, so the duplicated descriptors already satisfy "disable
	// output buffering" -- nothing further to configure here.

	return loop(plugin, in, out)
}

// duplicateStdin performs step 1: duplicate the original stdin
// descriptor for protocol input, then close the original so an
// accidental read by plugin code fails immediately instead of racing
// the protocol reader.
func duplicateStdin() (*os.File, error) {
	dupFd, err := unix.Dup(int(os.Stdin.Fd()))
	if err != nil {
		return nil, err
	}
	in := os.NewFile(uintptr(dupFd), "pluginhost-in")

	if err := os.Stdin.Close(); err != nil {
		return nil, err
	}

	return in, nil
}

// redirectStdout performs step 2: duplicate the original stdout
// descriptor for protocol output, then dup2 stderr onto stdout so
// print-style plugin output becomes free-form text on stderr instead of
// corrupting the framed protocol stream.
func redirectStdout() (*os.File, error) {
	dupFd, err := unix.Dup(int(os.Stdout.Fd()))
	if err != nil {
		return nil, err
	}
	out := os.NewFile(uintptr(dupFd), "pluginhost-out")

	if err := unix.Dup2(int(os.Stderr.Fd()), int(os.Stdout.Fd())); err != nil {
		return nil, err
	}

	return out, nil
}

// loop implements step 5: read one framed PerformAction, dispatch it by
// capability, emit the resulting commands/diagnostics, then
// ActionComplete. Any further reads past that naturally hit EOF once the
// host closes its end, which is how the loop ends without an explicit
// shutdown message.
func loop(plugin any, in io.Reader, out io.Writer) error {
	for {
		payload, err := wire.ReadFrame(in)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		var msg wire.Message
		if err := json.Unmarshal(payload, &msg); err != nil {
			return &pherr.MalformedInputJSON{Message: fmt.Sprintf("could not decode host message: %v", err)}
		}

		switch msg.Kind {
		case wire.MessageKindPerformAction:
			if err := handleAction(plugin, msg.PerformAction, out); err != nil {
				return err
			}
		default:
			// No pending request is ever issued by this runtime's own
			// capability handlers yet (symbol-graph requests are an
			// optional extension point), so any other inbound kind is
			// unexpected from the plugin's perspective.
			return &pherr.MalformedInputJSON{Message: fmt.Sprintf("unexpected message kind: %q", msg.Kind)}
		}
	}
}

// handleAction dispatches one PerformAction by capability, verifying the
// plugin type conforms to the requested action, and frames the resulting
// commands, diagnostics, and terminal ActionComplete.
func handleAction(plugin any, input *wire.Input, out io.Writer) error {
	ctx := pluginapi.NewContext(input)

	var success bool
	var commands []pluginapi.Command

	switch input.PluginAction.Kind {
	case wire.ActionKindCreateBuildToolCommands:
		p, ok := plugin.(pluginapi.BuildToolPlugin)
		if !ok {
			return sendMalformedCapability(out, "plugin does not implement BuildToolPlugin")
		}
		cmds, err := p.CreateBuildCommands(ctx)
		if err != nil {
			if isFatalCapabilityError(err) {
				return err
			}
			ctx.EmitDiagnostic(wire.SeverityError, err.Error())
		} else {
			commands = cmds
			success = true
		}

	case wire.ActionKindPerformUserCommand:
		p, ok := plugin.(pluginapi.UserCommandPlugin)
		if !ok {
			return sendMalformedCapability(out, "plugin does not implement UserCommandPlugin")
		}
		if err := p.PerformCommand(ctx, input.PluginAction.Arguments); err != nil {
			if isFatalCapabilityError(err) {
				return err
			}
			ctx.EmitDiagnostic(wire.SeverityError, err.Error())
		} else {
			commands = ctx.Commands()
			success = true
		}

	default:
		return sendMalformedCapability(out, fmt.Sprintf("unknown action kind: %q", input.PluginAction.Kind))
	}

	for _, cmd := range commands {
		if err := sendCommand(out, cmd); err != nil {
			return err
		}
	}

	for _, diag := range ctx.Diagnostics() {
		if err := sendMessage(out, wire.Message{Kind: wire.MessageKindEmitDiagnostic, EmitDiagnostic: &diag}); err != nil {
			return err
		}
	}

	return sendMessage(out, wire.Message{
		Kind:           wire.MessageKindActionComplete,
		ActionComplete: &wire.ActionComplete{Success: success},
	})
}

func sendCommand(out io.Writer, cmd pluginapi.Command) error {
	config := wire.CommandConfig{
		DisplayName:      cmd.DisplayName,
		Executable:       cmd.Executable,
		Arguments:        cmd.Arguments,
		Environment:      cmd.Environment,
		WorkingDirectory: cmd.WorkingDirectory,
	}

	switch cmd.Kind {
	case pluginapi.CommandKindPrebuild:
		prebuild := &wire.PrebuildCommand{Config: config, OutputFilesDirectory: cmd.OutputFilesDirectory}
		return sendMessage(out, wire.Message{Kind: wire.MessageKindDefinePrebuildCommand, DefinePrebuildCommand: prebuild})
	default:
		build := &wire.BuildCommand{Config: config, Inputs: cmd.Inputs, Outputs: cmd.Outputs}
		return sendMessage(out, wire.Message{Kind: wire.MessageKindDefineBuildCommand, DefineBuildCommand: build})
	}
}

// isFatalCapabilityError reports whether err is a structural, taxonomy
// error (spec.md §7's ToolNotFound, raised when a capability call asks
// for a tool never declared accessible) rather than an ordinary
// business failure. These abort the process per spec.md §8 S3 instead
// of being folded into a diagnostic and a successful exit: the caller
// propagates err unchanged, so it reaches Main's stderr-then-exit(1)
// path without an ActionComplete ever being sent.
func isFatalCapabilityError(err error) bool {
	var toolNotFound *pherr.ToolNotFound
	return errors.As(err, &toolNotFound)
}

func sendMalformedCapability(out io.Writer, message string) error {
	if err := sendMessage(out, wire.Message{
		Kind:           wire.MessageKindActionComplete,
		ActionComplete: &wire.ActionComplete{Success: false},
	}); err != nil {
		return err
	}
	return &pherr.MalformedInputJSON{Message: message}
}

func sendMessage(out io.Writer, msg wire.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return wire.WriteFrame(out, payload)
}
