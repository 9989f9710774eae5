// SPDX-License-Identifier: BSD-3-Clause
//
// Authors: Alexander Jung <alex@unikraft.io>
//
// Copyright (c) 2022, Unikraft GmbH.  All rights reserved.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions
// are met:
//
// 1. Redistributions of source code must retain the above copyright
//    notice, this list of conditions and the following disclaimer.
// 2. Redistributions in binary form must reproduce the above copyright
//    notice, this list of conditions and the following disclaimer in the
//    documentation and/or other materials provided with the distribution.
// 3. Neither the name of the copyright holder nor the names of its
//    contributors may be used to endorse or promote products derived from
//    this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS"
// AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE
// IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE
// ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE
// LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR
// CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF
// SUBSTITUTE GOODS OR SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN
// CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE)
// ARISING IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
// POSSIBILITY OF SUCH DAMAGE.

package exec

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
)

type Process struct {
	executable *Executable
	opts       *ExecOptions
	cmd        *exec.Cmd
}

// NewProcess prepares a process to be executed from a given binary name and
// optional execution options
func NewProcess(bin string, args []string, eopts ...ExecOption) (*Process, error) {
	executable, err := NewExecutable(bin)
	if err != nil {
		return nil, err
	}

	executable.args = append(executable.args, args...)

	return NewProcessFromExecutable(executable, eopts...)
}

// NewProcessFromExecutable prepares a process to be executed from a given
// *Executable object and optional execution options
func NewProcessFromExecutable(executable *Executable, eopts ...ExecOption) (*Process, error) {
	if executable == nil {
		return nil, fmt.Errorf("cannot prepare process without executable")
	}

	opts, err := NewExecOptions(eopts...)
	if err != nil {
		return nil, err
	}

	e := &Process{
		executable: executable,
		opts:       opts,
	}

	return e, nil
}

// Cmdline returns the full command line to be executed
func (e *Process) Cmdline() string {
	return strings.Join(
		append(
			[]string{e.executable.bin},
			e.executable.Args()...,
		),
		" ",
	)
}

// Start the process
func (e *Process) Start() error {
	e.cmd = e.commandWithoutStart()

	// A prior call to StdinPipe/StdoutPipe/StderrPipe already wired the
	// corresponding field; respect it instead of overwriting.
	if e.cmd.Stdout == nil {
		if e.opts.stdout != nil && len(e.opts.stdoutcbs) == 0 {
			e.cmd.Stdout = e.opts.stdout
		} else if e.opts.stdout != nil && len(e.opts.stdoutcbs) > 0 {
			e.cmd.Stdout = io.MultiWriter(
				append([]io.Writer{e.opts.stdout}, e.opts.stdoutcbs...)...,
			)
		} else if len(e.opts.stdoutcbs) > 0 {
			e.cmd.Stdout = io.MultiWriter(e.opts.stdoutcbs...)
		}
	}

	if e.cmd.Stderr == nil {
		if e.opts.stderr != nil && len(e.opts.stderrcbs) == 0 {
			e.cmd.Stderr = e.opts.stderr
		} else if e.opts.stderr != nil && len(e.opts.stderrcbs) > 0 {
			e.cmd.Stderr = io.MultiWriter(
				append([]io.Writer{e.opts.stderr}, e.opts.stderrcbs...)...,
			)
		} else if e.opts.stdout != nil && len(e.opts.stderrcbs) == 0 {
			e.cmd.Stderr = e.opts.stdout
		} else if e.opts.stdout != nil && len(e.opts.stderrcbs) > 0 {
			e.cmd.Stderr = io.MultiWriter(
				append([]io.Writer{e.opts.stdout}, e.opts.stderrcbs...)...,
			)
		} else if len(e.opts.stderrcbs) > 0 {
			e.cmd.Stderr = io.MultiWriter(e.opts.stderrcbs...)
		}
	}

	if e.cmd.Stdin == nil && e.opts.stdin != nil {
		e.cmd.Stdin = e.opts.stdin
	}

	if e.opts.log != nil {
		e.opts.log.Debug(e.Cmdline())
	}

	return e.cmd.Start()
}

// Wait for the process to complete
func (e *Process) Wait() error {
	if e.cmd == nil {
		return fmt.Errorf("process has not yet started cannot wait")
	}

	err := e.cmd.Wait()
	if len(e.opts.callbacks) > 0 {
		for _, cb := range e.opts.callbacks {
			cb(e.cmd.ProcessState.ExitCode())
		}
	}

	return err
}

// StartAndWait starts the process and waits for it to exit
func (e *Process) StartAndWait() error {
	if err := e.Start(); err != nil {
		return err
	}

	return e.Wait()
}

// StdinPipe returns a pipe connected to the process's standard input, for
// callers that need to drive a framed protocol rather than redirect a
// whole io.Writer. Must be called before Start.
func (e *Process) StdinPipe() (io.WriteCloser, error) {
	e.cmd = e.commandWithoutStart()
	return e.cmd.StdinPipe()
}

// StdoutPipe returns a pipe connected to the process's standard output.
// Must be called before Start.
func (e *Process) StdoutPipe() (io.ReadCloser, error) {
	e.cmd = e.commandWithoutStart()
	return e.cmd.StdoutPipe()
}

// StderrPipe returns a pipe connected to the process's standard error.
// Must be called before Start.
func (e *Process) StderrPipe() (io.ReadCloser, error) {
	e.cmd = e.commandWithoutStart()
	return e.cmd.StderrPipe()
}

// commandWithoutStart lazily builds the underlying *exec.Cmd so
// StdinPipe/StdoutPipe/StderrPipe can be requested in any order before
// Start is called.
func (e *Process) commandWithoutStart() *exec.Cmd {
	if e.cmd != nil {
		return e.cmd
	}

	var cmd *exec.Cmd
	if e.opts.ctx != nil {
		cmd = exec.CommandContext(e.opts.ctx, e.executable.bin, e.executable.Args()...)
	} else {
		cmd = exec.Command(e.executable.bin, e.executable.Args()...)
	}

	cmd.Env = append(os.Environ(), e.opts.env...)
	cmd.Dir = e.opts.dir
	cmd.SysProcAttr = hostAttributes()

	return cmd
}

// Signal sends a signal to the running process.  If this fails, for example if
// the process is not running, this will return an error.
func (e *Process) Signal(signal syscall.Signal) error {
	return e.cmd.Process.Signal(signal)
}

// Kill sends a SIGKILL to the running process.  If this fails, for example if
// the process is not running, this will return an error.
func (e *Process) Kill() error {
	return e.Signal(syscall.SIGKILL)
}
