package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/sitewatch/pkg/sitewatch/types"
)

func TestPlainFormatter_Format(t *testing.T) {
	formatter := &PlainFormatter{}
	var buf bytes.Buffer

	require.NoError(t, formatter.Format(&buf, sampleReport()))

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, "STATUS  PATH", lines[0])
	assert.Equal(t, "new     guide/new.html", lines[1])
	assert.Equal(t, "deleted old.html", lines[2])
	assert.Equal(t, "ignored sitemap.xml", lines[5])
	assert.NotContains(t, buf.String(), "\x1b[", "plain output must not contain ANSI codes")
}

func TestPlainFormatter_Format_Empty(t *testing.T) {
	formatter := &PlainFormatter{}
	var buf bytes.Buffer

	require.NoError(t, formatter.Format(&buf, &types.Report{}))
	assert.Equal(t, "STATUS PATH\n", buf.String())
}

func TestPathsFormatter_Format(t *testing.T) {
	formatter := &PathsFormatter{}
	var buf bytes.Buffer

	require.NoError(t, formatter.Format(&buf, sampleReport()))
	assert.Equal(t, "guide/new.html\nold.html\nindex.html\nguide/\n", buf.String())
}
