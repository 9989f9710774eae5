// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2022, Unikraft GmbH and The KraftKit Authors.
// Licensed under the BSD-3-Clause License (the "License").
// You may not use this file except in compliance with the License.

// Package sandbox spawns a compiled plugin executable, exchanges the
// framed-JSON wire protocol with it over stdin/stdout, and streams its
// stderr line-by-line. Spawning follows exec.Process's own
// lifecycle (Start/Wait/Signal/Kill); everything else is new: pipes
// instead of redirected writers, a length-prefixed framing layer, a
// three-way termination barrier, and escalating cancellation.
package sandbox

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"pluginhost.sh/exec"
	"pluginhost.sh/log"
	"pluginhost.sh/pherr"
	"pluginhost.sh/wire"
)

// TextSink receives stderr lines as the plugin emits them, for live
// progress display. Never fed plugin stdout, which is reserved for the
// framed protocol.
type TextSink interface {
	Write(line string)
}

// TextSinkFunc adapts a function to a TextSink.
type TextSinkFunc func(line string)

func (f TextSinkFunc) Write(line string) { f(line) }

// Runner spawns and supervises one plugin invocation at a time; callers
// wanting parallel invocations run multiple Runners concurrently (see
// the session package).
type Runner struct {
	Log *logrus.Logger
}

// NewRunner prepares a Runner. l may be nil, in which case the
// package-global logger is used.
func NewRunner(l *logrus.Logger) *Runner {
	if l == nil {
		l = log.L
	}
	return &Runner{Log: l}
}

const (
	sigtermGrace = 2 * time.Second
	sigkillGrace = 3 * time.Second
)

// Invoke spawns executable, sends input as the single PerformAction
// frame, and collects everything the plugin emits until it sends a
// terminal ActionComplete message or the process exits. writableDirs
// are the directories the sandbox profile binds read-write (the
// invocation's work directory and the cache directory); everything else
// is read-only and network access is denied.
//
// queue receives a best-effort stream of short progress notes ("started",
// "sandboxed", "unconfined: <reason>", "complete"); sends are dropped
// rather than blocking if the caller isn't reading. A nil queue is valid.
func (r *Runner) Invoke(
	ctx context.Context,
	executable string,
	writableDirs []string,
	input *wire.Input,
	sink TextSink,
	queue chan<- string,
) (*wire.Output, error) {
	note := func(s string) {
		if queue == nil {
			return
		}
		select {
		case queue <- s:
		default:
		}
	}

	bin, args, unconfinedReason := wrapCommand(executable, nil, writableDirs)
	if unconfinedReason != "" {
		r.Log.WithField("executable", executable).Warnf("sandbox: running unconfined: %s", unconfinedReason)
		note("unconfined: " + unconfinedReason)
	} else {
		note("sandboxed")
	}

	proc, err := exec.NewProcess(bin, args, exec.WithLogger(r.Log))
	if err != nil {
		return nil, &pherr.SubprocessDidNotStart{Message: "could not prepare plugin invocation", Command: append([]string{bin}, args...), Cause: err}
	}

	stdin, err := proc.StdinPipe()
	if err != nil {
		return nil, &pherr.SubprocessDidNotStart{Message: "could not open plugin stdin", Command: append([]string{bin}, args...), Cause: err}
	}
	stdout, err := proc.StdoutPipe()
	if err != nil {
		return nil, &pherr.SubprocessDidNotStart{Message: "could not open plugin stdout", Command: append([]string{bin}, args...), Cause: err}
	}
	stderr, err := proc.StderrPipe()
	if err != nil {
		return nil, &pherr.SubprocessDidNotStart{Message: "could not open plugin stderr", Command: append([]string{bin}, args...), Cause: err}
	}

	if err := proc.Start(); err != nil {
		return nil, &pherr.SubprocessDidNotStart{Message: "could not start plugin", Command: append([]string{bin}, args...), Cause: err}
	}
	note("started")

	payload, err := json.Marshal(wire.Message{Kind: wire.MessageKindPerformAction, PerformAction: input})
	if err != nil {
		return nil, &pherr.MalformedMessage{Cause: err}
	}
	if err := writeFrame(stdin, payload); err != nil {
		return nil, &pherr.SubprocessDidNotStart{Message: "could not send action to plugin", Command: append([]string{bin}, args...), Cause: err}
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		out       = &wire.Output{}
		final     *wire.ActionComplete
		decErr    error
		stderrBuf []string
	)
	const stderrTailLines = 50
	wg.Add(3)

	// stdout: framed wire protocol.
	go func() {
		defer wg.Done()
		defer stdin.Close()
		for {
			payload, ferr := readFrame(stdout)
			if ferr == io.EOF {
				return
			}
			if ferr != nil {
				mu.Lock()
				if decErr == nil {
					decErr = ferr
				}
				mu.Unlock()
				return
			}

			var msg wire.Message
			if err := json.Unmarshal(payload, &msg); err != nil {
				mu.Lock()
				if decErr == nil {
					decErr = &pherr.DecodingPluginOutputFailed{Payload: payload, Cause: err}
				}
				mu.Unlock()
				return
			}

			mu.Lock()
			applyMessage(out, &msg)
			if msg.Kind == wire.MessageKindActionComplete {
				final = msg.ActionComplete
			}
			mu.Unlock()

			if msg.Kind == wire.MessageKindActionComplete {
				return
			}

			// Symbol graphs are not resolved by this host: every request
			// is answered with an ErrorResponse.
			if msg.Kind == wire.MessageKindSymbolGraphRequest {
				resp, _ := json.Marshal(wire.Message{Kind: wire.MessageKindErrorResponse, ErrorResponse: &wire.ErrorResponse{Error: "symbol graph requests are not supported by this host"}})
				_ = writeFrame(stdin, resp)
			}
		}
	}()

	// stderr: plain text lines, forwarded to sink.
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stderr)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if sink != nil {
				sink.Write(line)
			}
			mu.Lock()
			stderrBuf = append(stderrBuf, line)
			if len(stderrBuf) > stderrTailLines {
				stderrBuf = stderrBuf[len(stderrBuf)-stderrTailLines:]
			}
			mu.Unlock()
		}
	}()

	// process exit.
	waitErr := make(chan error, 1)
	go func() {
		defer wg.Done()
		waitErr <- proc.Wait()
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		stdin.Close()
		if !waitWithTimeout(done, sigtermGrace) {
			_ = proc.Signal(syscall.SIGTERM)
			if !waitWithTimeout(done, sigkillGrace) {
				_ = proc.Kill()
				<-done
			}
		}
		return nil, &pherr.Cancelled{Command: append([]string{bin}, args...)}
	}

	exitErr := <-waitErr

	mu.Lock()
	defer mu.Unlock()

	if decErr != nil {
		return nil, decErr
	}

	stderrTail := strings.Join(stderrBuf, "\n")

	if exitErr != nil {
		return nil, &pherr.SubprocessFailed{ExitCode: exitCode(exitErr), Command: append([]string{bin}, args...), StderrText: stderrTail}
	}

	if final == nil {
		return nil, &pherr.MissingPluginOutput{Message: "plugin exited without sending actionComplete", Command: append([]string{bin}, args...), StderrText: stderrTail}
	}

	if !final.Success {
		return nil, &pherr.ActionFailed{Command: append([]string{bin}, args...), StderrText: stderrTail}
	}

	note("complete")
	out.Success = true
	return out, nil
}

// applyMessage folds one plugin->host message into the accumulating
// Output, in emission order within each category.
func applyMessage(out *wire.Output, msg *wire.Message) {
	switch msg.Kind {
	case wire.MessageKindEmitDiagnostic:
		if msg.EmitDiagnostic != nil {
			out.Diagnostics = append(out.Diagnostics, *msg.EmitDiagnostic)
		}
	case wire.MessageKindDefineBuildCommand:
		if msg.DefineBuildCommand != nil {
			out.BuildCommands = append(out.BuildCommands, *msg.DefineBuildCommand)
		}
	case wire.MessageKindDefinePrebuildCommand:
		if msg.DefinePrebuildCommand != nil {
			out.PrebuildCommands = append(out.PrebuildCommands, *msg.DefinePrebuildCommand)
		}
	}
}

func waitWithTimeout(done <-chan struct{}, d time.Duration) bool {
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}

func exitCode(err error) int {
	type exitCoder interface{ ExitCode() int }
	if ec, ok := err.(exitCoder); ok {
		return ec.ExitCode()
	}
	return -1
}
