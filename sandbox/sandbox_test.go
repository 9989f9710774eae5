// SPDX-License-Identifier: BSD-3-Clause
package sandbox_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pluginhost.sh/pherr"
	"pluginhost.sh/sandbox"
	"pluginhost.sh/wire"
)

type collectingSink struct {
	mu    sync.Mutex
	lines []string
}

func (s *collectingSink) Write(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, line)
}

func (s *collectingSink) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

func selfExecutable(t *testing.T) string {
	t.Helper()
	self, err := os.Executable()
	require.NoError(t, err)
	return self
}

// TestInvokeCollectsDiagnosticsAndSucceeds: a well-behaved plugin writes
// a stderr line, emits one diagnostic, then completes successfully;
// Invoke returns an Output carrying the diagnostic, and the sink
// receives the stderr line.
func TestInvokeCollectsDiagnosticsAndSucceeds(t *testing.T) {
	t.Setenv("PLUGINHOST_HELPER_MODE", "echo-complete")

	r := sandbox.NewRunner(nil)
	sink := &collectingSink{}
	queue := make(chan string, 16)

	out, err := r.Invoke(context.Background(), selfExecutable(t), []string{t.TempDir()}, &wire.Input{}, sink, queue)
	require.NoError(t, err)
	require.True(t, out.Success)
	require.Len(t, out.Diagnostics, 1)
	require.Equal(t, "hello from plugin", out.Diagnostics[0].Message)

	require.Contains(t, sink.Lines(), "helper: received action")
}

// TestInvokeCancellationTerminatesHungPlugin exercises S5: a plugin that
// never responds is killed when the context is cancelled, and Invoke
// reports Cancelled rather than hanging forever.
func TestInvokeCancellationTerminatesHungPlugin(t *testing.T) {
	t.Setenv("PLUGINHOST_HELPER_MODE", "hang")

	r := sandbox.NewRunner(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err := r.Invoke(ctx, selfExecutable(t), []string{t.TempDir()}, &wire.Input{}, nil, nil)
	require.Error(t, err)
}

// TestInvokeMissingActionCompleteIsReported exercises property 6: a plugin that
// exits cleanly without ever sending ActionComplete is a protocol
// violation, not a silent success.
func TestInvokeMissingActionCompleteIsReported(t *testing.T) {
	t.Setenv("PLUGINHOST_HELPER_MODE", "exit-without-complete")

	r := sandbox.NewRunner(nil)
	_, err := r.Invoke(context.Background(), selfExecutable(t), []string{t.TempDir()}, &wire.Input{}, nil, nil)
	require.Error(t, err)
}

// TestInvokeToolNotFoundIsReportedAsSubprocessFailed exercises S3: a
// plugin whose capability call hits an unregistered tool name exits 1
// without ever sending ActionComplete, and Invoke reports
// SubprocessFailed with the tool name present in the captured stderr.
func TestInvokeToolNotFoundIsReportedAsSubprocessFailed(t *testing.T) {
	t.Setenv("PLUGINHOST_HELPER_MODE", "tool-not-found")

	r := sandbox.NewRunner(nil)
	_, err := r.Invoke(context.Background(), selfExecutable(t), []string{t.TempDir()}, &wire.Input{}, nil, nil)
	require.Error(t, err)

	var failed *pherr.SubprocessFailed
	require.ErrorAs(t, err, &failed)
	require.Contains(t, failed.StderrText, "doc")
}

// TestInvokeActionCompleteFailureIsReported exercises spec.md §4.D's
// "succeeds iff exit 0 AND ActionComplete{success=true}": a plugin that
// exits 0 but reports success=false must not be treated as a successful
// invocation.
func TestInvokeActionCompleteFailureIsReported(t *testing.T) {
	t.Setenv("PLUGINHOST_HELPER_MODE", "action-failed")

	r := sandbox.NewRunner(nil)
	_, err := r.Invoke(context.Background(), selfExecutable(t), []string{t.TempDir()}, &wire.Input{}, nil, nil)
	require.Error(t, err)

	var failed *pherr.ActionFailed
	require.ErrorAs(t, err, &failed)
}
