package version

import (
	"bytes"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFprintVersion(t *testing.T) {
	var buf bytes.Buffer
	FprintVersion(&buf)

	fields := strings.Fields(buf.String())
	require.Len(t, fields, 5)
	assert.Equal(t, Package, fields[1])
	assert.Equal(t, Version, fields[2])
	assert.Equal(t, "unknown", fields[3])
	assert.Equal(t, "("+runtime.Version()+")", fields[4])
}

func TestCmdShort(t *testing.T) {
	var buf bytes.Buffer
	Cmd.SetOut(&buf)
	Cmd.SetArgs([]string{"--short"})
	require.NoError(t, Cmd.Execute())
	assert.Equal(t, Version+"\n", buf.String())
}
