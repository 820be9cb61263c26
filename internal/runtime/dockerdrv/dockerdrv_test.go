package dockerdrv

import (
	"archive/tar"
	"bufio"
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m-voss/devcell/protocol"
)

func TestParsePortRange(t *testing.T) {
	lo, hi, err := parsePortRange("5173-5183")
	require.NoError(t, err)
	assert.Equal(t, 5173, lo)
	assert.Equal(t, 5183, hi)
}

func TestParsePortRange_SinglePort(t *testing.T) {
	lo, hi, err := parsePortRange("8080")
	require.NoError(t, err)
	assert.Equal(t, 8080, lo)
	assert.Equal(t, 8080, hi)
}

func TestParsePortRange_Invalid(t *testing.T) {
	for _, s := range []string{"", "abc", "5183-5173", "5173-abc"} {
		_, _, err := parsePortRange(s)
		assert.Error(t, err, "input %q", s)
	}
}

func TestInsertPath(t *testing.T) {
	tree := protocol.FileTree{}
	insertPath(tree, "src/lib/util.js", "export {}")
	insertPath(tree, "src/main.js", "console.log(1)")
	insertPath(tree, "index.html", "<html>")

	assert.Equal(t, "<html>", tree["index.html"].Contents)
	src := tree["src"].Children
	require.NotNil(t, src)
	assert.Equal(t, "console.log(1)", src["main.js"].Contents)
	assert.Equal(t, "export {}", src["lib"].Children["util.js"].Contents)
}

func TestWriteTree(t *testing.T) {
	tree := protocol.FileTree{
		"package.json": {Contents: `{"name":"app"}`},
		"src": {Children: map[string]protocol.FileNode{
			"main.js": {Contents: "console.log(1)"},
		}},
	}

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	require.NoError(t, writeTree(tw, "", tree))
	require.NoError(t, tw.Close())

	files := map[string]string{}
	var dirs []string
	tr := tar.NewReader(&buf)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		if hdr.Typeflag == tar.TypeDir {
			dirs = append(dirs, hdr.Name)
			continue
		}
		data, err := io.ReadAll(tr)
		require.NoError(t, err)
		files[hdr.Name] = string(data)
	}

	assert.Equal(t, `{"name":"app"}`, files["package.json"])
	assert.Equal(t, "console.log(1)", files["src/main.js"])
	assert.Contains(t, dirs, "src/")
}

func collectOutput(p *process) string {
	var b strings.Builder
	for chunk := range p.out {
		b.WriteString(chunk)
	}
	return b.String()
}

func TestDrainOutputTTY(t *testing.T) {
	p := &process{
		attach: types.HijackedResponse{Reader: bufio.NewReader(strings.NewReader("vite v5.0.0\nready in 312ms\n"))},
		out:    make(chan string, 8),
	}
	p.drainOutput(true)
	assert.Equal(t, "vite v5.0.0\nready in 312ms\n", collectOutput(p))
}

func TestDrainOutputDemuxesStdcopyFrames(t *testing.T) {
	var framed bytes.Buffer
	_, err := io.WriteString(stdcopy.NewStdWriter(&framed, stdcopy.Stdout), "installed 42 packages\n")
	require.NoError(t, err)
	_, err = io.WriteString(stdcopy.NewStdWriter(&framed, stdcopy.Stderr), "npm warn deprecated\n")
	require.NoError(t, err)

	p := &process{
		attach: types.HijackedResponse{Reader: bufio.NewReader(&framed)},
		out:    make(chan string, 8),
	}
	p.drainOutput(false)

	got := collectOutput(p)
	assert.Contains(t, got, "installed 42 packages")
	assert.Contains(t, got, "npm warn deprecated")
}

func TestWorkspacePathClampsEscapes(t *testing.T) {
	h := &Handle{}
	assert.Equal(t, "/workspace/src", h.workspacePath("src"))
	assert.Equal(t, "/workspace/etc/passwd", h.workspacePath("../../etc/passwd"))
	assert.Equal(t, "/workspace", h.workspacePath("/"))
}
