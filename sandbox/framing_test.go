// SPDX-License-Identifier: BSD-3-Clause
package sandbox

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"pluginhost.sh/pherr"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeFrame(&buf, []byte(`{"a":1}`)))

	payload, err := readFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, `{"a":1}`, string(payload))
}

func TestFrameEOFOnEmptyStream(t *testing.T) {
	_, err := readFrame(&bytes.Buffer{})
	require.ErrorIs(t, err, io.EOF)
}

func TestFrameTruncatedHeader(t *testing.T) {
	buf := bytes.NewBuffer([]byte{1, 2, 3})
	_, err := readFrame(buf)

	var truncated *pherr.TruncatedHeader
	require.ErrorAs(t, err, &truncated)
}

func TestFrameTruncatedPayload(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeFrame(&buf, []byte(`{"a":1}`)))

	truncatedStream := bytes.NewBuffer(buf.Bytes()[:buf.Len()-2])
	_, err := readFrame(truncatedStream)

	var truncated *pherr.TruncatedPayload
	require.ErrorAs(t, err, &truncated)
}

func TestFrameInvalidPayloadSizeTooSmall(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeFrame(&buf, []byte("x")))

	_, err := readFrame(&buf)

	var invalid *pherr.InvalidPayloadSize
	require.ErrorAs(t, err, &invalid)
}
