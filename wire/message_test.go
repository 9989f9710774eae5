// SPDX-License-Identifier: BSD-3-Clause
package wire_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"pluginhost.sh/pherr"
	"pluginhost.sh/wire"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte(`{"hello":"world"}`)

	require.NoError(t, wire.WriteFrame(&buf, payload))

	got, err := wire.ReadFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestReadFrameReturnsEOFOnCleanStreamEnd(t *testing.T) {
	_, err := wire.ReadFrame(bytes.NewReader(nil))
	require.ErrorIs(t, err, io.EOF)
}

func TestReadFrameRejectsTruncatedHeader(t *testing.T) {
	_, err := wire.ReadFrame(bytes.NewReader([]byte{1, 2, 3}))
	var truncated *pherr.TruncatedHeader
	require.ErrorAs(t, err, &truncated)
}

func TestReadFrameRejectsPayloadBelowMinimum(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, wire.WriteFrame(&buf, []byte("a")))

	// WriteFrame happily wrote a 1-byte payload; ReadFrame must reject the
	// header's declared size as below MinPayloadSize.
	_, err := wire.ReadFrame(&buf)
	var invalid *pherr.InvalidPayloadSize
	require.ErrorAs(t, err, &invalid)
}

func TestReadFrameRejectsTruncatedPayload(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, wire.WriteFrame(&buf, []byte(`{}`)))

	full := buf.Bytes()
	short := full[:len(full)-1]

	_, err := wire.ReadFrame(bytes.NewReader(short))
	var truncated *pherr.TruncatedPayload
	require.ErrorAs(t, err, &truncated)
}

func TestMessageMarshalUnmarshalActionComplete(t *testing.T) {
	msg := wire.Message{
		Kind:           wire.MessageKindActionComplete,
		ActionComplete: &wire.ActionComplete{Success: true},
	}

	data, err := msg.MarshalJSON()
	require.NoError(t, err)
	require.NotContains(t, string(data), "\n")

	var decoded wire.Message
	require.NoError(t, decoded.UnmarshalJSON(data))
	require.Equal(t, wire.MessageKindActionComplete, decoded.Kind)
	require.NotNil(t, decoded.ActionComplete)
	require.True(t, decoded.ActionComplete.Success)
}

func TestMessageMarshalUnmarshalEmitDiagnostic(t *testing.T) {
	line := 42
	msg := wire.Message{
		Kind: wire.MessageKindEmitDiagnostic,
		EmitDiagnostic: &wire.Diagnostic{
			Severity: wire.SeverityWarning,
			Message:  "a <b> & c",
			File:     "plugin.go",
			Line:     &line,
		},
	}

	data, err := msg.MarshalJSON()
	require.NoError(t, err)
	// marshalNoEscape must leave HTML metacharacters untouched.
	require.Contains(t, string(data), "a <b> & c")

	var decoded wire.Message
	require.NoError(t, decoded.UnmarshalJSON(data))
	require.Equal(t, wire.SeverityWarning, decoded.EmitDiagnostic.Severity)
	require.Equal(t, 42, *decoded.EmitDiagnostic.Line)
}

func TestMessageUnmarshalRejectsUnknownKind(t *testing.T) {
	var decoded wire.Message
	err := decoded.UnmarshalJSON([]byte(`{"kind":"bogusKind","payload":{}}`))

	var malformed *pherr.MalformedMessage
	require.ErrorAs(t, err, &malformed)
}

func TestMessageMarshalRejectsUnknownKind(t *testing.T) {
	msg := wire.Message{Kind: "bogusKind"}
	_, err := msg.MarshalJSON()
	require.Error(t, err)
}

func TestMessageUnmarshalRejectsInvalidEnvelope(t *testing.T) {
	var decoded wire.Message
	err := decoded.UnmarshalJSON([]byte(`not json`))

	var malformed *pherr.MalformedMessage
	require.ErrorAs(t, err, &malformed)
}
