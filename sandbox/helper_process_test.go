// SPDX-License-Identifier: BSD-3-Clause

// This file implements the standard library's TestHelperProcess pattern
// (see os/exec's own tests): the test binary re-executes itself as a
// subprocess standing in for a compiled plugin, selected by an
// environment variable rather than building a second binary.
package sandbox

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"testing"
	"time"

	"pluginhost.sh/pherr"
	"pluginhost.sh/wire"
)

func TestMain(m *testing.M) {
	switch os.Getenv("PLUGINHOST_HELPER_MODE") {
	case "echo-complete":
		os.Exit(helperEchoComplete())
	case "hang":
		os.Exit(helperHang())
	case "exit-without-complete":
		os.Exit(helperExitWithoutComplete())
	case "tool-not-found":
		os.Exit(helperToolNotFound())
	case "action-failed":
		os.Exit(helperActionFailed())
	case "":
		os.Exit(m.Run())
	default:
		fmt.Fprintln(os.Stderr, "unknown helper mode")
		os.Exit(2)
	}
}

// helperEchoComplete reads exactly one framed PerformAction message,
// writes a text line to stderr and one diagnostic frame to stdout, then
// sends ActionComplete{success: true}.
func helperEchoComplete() int {
	payload, err := readFrame(os.Stdin)
	if err != nil {
		fmt.Fprintln(os.Stderr, "helper: read frame:", err)
		return 1
	}

	var msg wire.Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		fmt.Fprintln(os.Stderr, "helper: decode:", err)
		return 1
	}

	fmt.Fprintln(os.Stderr, "helper: received action")

	diag := wire.Message{
		Kind:           wire.MessageKindEmitDiagnostic,
		EmitDiagnostic: &wire.Diagnostic{Severity: wire.SeverityRemark, Message: "hello from plugin"},
	}
	if err := sendMessage(os.Stdout, diag); err != nil {
		return 1
	}

	complete := wire.Message{
		Kind:           wire.MessageKindActionComplete,
		ActionComplete: &wire.ActionComplete{Success: true},
	}
	if err := sendMessage(os.Stdout, complete); err != nil {
		return 1
	}

	return 0
}

// helperHang never responds, so the caller's context cancellation path
// is what terminates it.
func helperHang() int {
	_, _ = readFrame(os.Stdin)
	// A sleep rather than an empty select: with no other goroutine, the
	// runtime aborts a bare select{} as a deadlock.
	time.Sleep(time.Hour)
	return 0
}

// helperExitWithoutComplete reads the action and exits 0 without ever
// sending ActionComplete.
func helperExitWithoutComplete() int {
	_, _ = readFrame(os.Stdin)
	return 0
}

// helperToolNotFound stands in for a build-tool plugin whose
// CreateBuildCommands hit an unregistered tool name: it writes the
// taxonomy error to stderr and exits 1 without ever sending
// ActionComplete, matching pluginruntime's handling of a fatal
// capability error.
func helperToolNotFound() int {
	_, _ = readFrame(os.Stdin)
	fmt.Fprintln(os.Stderr, (&pherr.ToolNotFound{Name: "doc"}).Error())
	return 1
}

// helperActionFailed sends a well-formed terminal ActionComplete, but
// with success=false, and exits 0: the process itself ran fine, but the
// plugin's own capability call did not consider its action successful.
func helperActionFailed() int {
	_, _ = readFrame(os.Stdin)

	complete := wire.Message{
		Kind:           wire.MessageKindActionComplete,
		ActionComplete: &wire.ActionComplete{Success: false},
	}
	if err := sendMessage(os.Stdout, complete); err != nil {
		return 1
	}

	return 0
}

func sendMessage(w io.Writer, msg wire.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return writeFrame(w, payload)
}
