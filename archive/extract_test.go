// SPDX-License-Identifier: BSD-3-Clause
package archive_test

import (
	"archive/tar"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"pluginhost.sh/archive"
)

func writeToolArchive(t *testing.T, path, triple, name, content string) {
	t.Helper()

	fp, err := os.Create(path)
	require.NoError(t, err)
	defer fp.Close()

	gzw := gzip.NewWriter(fp)
	tw := tar.NewWriter(gzw)

	member := "bin/" + triple + "/" + name
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name: member,
		Mode: 0o755,
		Size: int64(len(content)),
	}))
	_, err = tw.Write([]byte(content))
	require.NoError(t, err)

	require.NoError(t, tw.Close())
	require.NoError(t, gzw.Close())
}

func TestExtractVendedToolWritesMemberAndReturnsPath(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "tool.tar.gz")
	writeToolArchive(t, archivePath, "x86_64-linux-gnu", "echo", "#!/bin/sh\necho hi\n")

	out, err := archive.ExtractVendedTool(archivePath, "x86_64-linux-gnu", "echo")
	require.NoError(t, err)

	content, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, "#!/bin/sh\necho hi\n", string(content))

	info, err := os.Stat(out)
	require.NoError(t, err)
	require.True(t, info.Mode()&0o100 != 0, "extracted tool should be executable")
}

func TestExtractVendedToolErrorsWhenMemberMissing(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "tool.tar.gz")
	writeToolArchive(t, archivePath, "x86_64-linux-gnu", "echo", "payload")

	_, err := archive.ExtractVendedTool(archivePath, "aarch64-linux-gnu", "echo")
	require.Error(t, err)
}

func TestExtractVendedToolErrorsWhenArchiveMissing(t *testing.T) {
	_, err := archive.ExtractVendedTool(filepath.Join(t.TempDir(), "absent.tar.gz"), "x86_64-linux-gnu", "echo")
	require.Error(t, err)
}
