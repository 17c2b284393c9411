package cli

import (
	"bufio"
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rdr(s string) *bufio.Reader {
	return bufio.NewReader(strings.NewReader(s))
}

func TestGetSimpleText(t *testing.T) {
	var out bytes.Buffer
	got, err := GetSimpleText(rdr("  https://beat.example  \n"), "Server URL", &out)
	require.NoError(t, err)
	assert.Equal(t, "https://beat.example", got)
	assert.Equal(t, "Server URL\n> ", out.String())
}

func TestGetSimpleTextEOF(t *testing.T) {
	var out bytes.Buffer
	got, err := GetSimpleText(rdr("lastline"), "Name?", &out)
	require.NoError(t, err)
	assert.Equal(t, "lastline", got)

	_, err = GetSimpleText(rdr(""), "Name?", &out)
	assert.Error(t, err)
}

func stubPassword(t *testing.T, value string, err error) {
	t.Helper()
	old := readPassword
	readPassword = func(int) ([]byte, error) { return []byte(value), err }
	t.Cleanup(func() { readPassword = old })
}

func TestGetSecret(t *testing.T) {
	stubPassword(t, "s3cret\n", nil)
	var out bytes.Buffer
	got, err := GetSecret("Auth token", &out)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", got)
	assert.Equal(t, "Auth token: \n", out.String())
}

func TestGetSecret_Error(t *testing.T) {
	stubPassword(t, "", errors.New("boom"))
	var out bytes.Buffer
	_, err := GetSecret("Auth token", &out)
	assert.Error(t, err)
}

func TestWithDefault(t *testing.T) {
	assert.Equal(t, "Device name", withDefault("Device name", ""))
	assert.Equal(t, "Device name [laptop]", withDefault("Device name", "laptop"))
}
