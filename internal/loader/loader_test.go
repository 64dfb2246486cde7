package loader

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.csv"))
	require.Error(t, err)

	var mf *MissingFileError
	require.True(t, errors.As(err, &mf))
	assert.True(t, strings.HasSuffix(mf.Path, "nope.csv"))
}

func TestLoadStripsBOMAndChecksums(t *testing.T) {
	path := filepath.Join(t.TempDir(), "screening.csv")
	content := "\xEF\xBB\xBFgeo,TIME_PERIOD,OBS_VALUE\nFR,2015,62.0\nDE,2016,55.5\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	tbl, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"geo", "TIME_PERIOD", "OBS_VALUE"}, tbl.Headers)
	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, "FR", tbl.Rows[0]["geo"])
	assert.Equal(t, "55.5", tbl.Rows[1]["OBS_VALUE"])
	assert.Len(t, tbl.Checksum, 64)
	assert.Empty(t, tbl.Malformed)

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, tbl.Checksum, again.Checksum)
}

func TestParseDropsMalformedRows(t *testing.T) {
	in := "geo,TIME_PERIOD,OBS_VALUE\n" +
		"FR,2015,62.0\n" +
		"FR,2016\n" +
		"DE,2016,55.5,extra\n" +
		"IT,2017,48.1\n"

	tbl, err := Parse("mem.csv", strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, "FR", tbl.Rows[0]["geo"])
	assert.Equal(t, "IT", tbl.Rows[1]["geo"])

	require.Len(t, tbl.Malformed, 2)
	assert.Equal(t, 3, tbl.Malformed[0].Line)
	assert.Equal(t, 4, tbl.Malformed[1].Line)
	assert.Contains(t, tbl.Malformed[0].Error(), "mem.csv:3")
}

func TestParseEmptyInput(t *testing.T) {
	_, err := Parse("empty.csv", strings.NewReader(""))
	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 1, pe.Line)
}

func TestParseHeaderOnly(t *testing.T) {
	tbl, err := Parse("h.csv", strings.NewReader("geo,TIME_PERIOD,OBS_VALUE\n"))
	require.NoError(t, err)
	assert.Empty(t, tbl.Rows)
}
