package dispatch

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildToolCommandSubstitutesPlaceholders(t *testing.T) {
	argv, err := BuildToolCommand(ToolInvocation{
		Program:      "take_dark",
		Flags:        []string{"--object", "{object}", "--filter", "{filter}", "--secs", "{exposure_time}", "--count", "{count}", "--out", "{output_dir}"},
		Object:       "rt-cyg",
		Filter:       "V",
		ExposureSecs: 30,
		Count:        5,
		OutputDir:    "/tmp/darks",
	})
	require.NoError(t, err)
	require.Equal(t, []string{
		"take_dark",
		"--object", "rt-cyg",
		"--filter", "V",
		"--secs", "30.000",
		"--count", "5",
		"--out", "/tmp/darks",
	}, argv)
}

func TestBuildToolCommandNoFlagsReturnsBareProgram(t *testing.T) {
	argv, err := BuildToolCommand(ToolInvocation{Program: "take_flat"})
	require.NoError(t, err)
	require.Equal(t, []string{"take_flat"}, argv)
}

func TestBuildToolCommandRejectsEmptyProgram(t *testing.T) {
	_, err := BuildToolCommand(ToolInvocation{Flags: []string{"--x"}})
	require.Error(t, err)
}

func TestBuildToolCommandRejectsUnsupportedPlaceholder(t *testing.T) {
	_, err := BuildToolCommand(ToolInvocation{Program: "p", Flags: []string{"{bogus}"}})
	require.Error(t, err)
}

func TestBuildToolCommandRejectsEmptyFlag(t *testing.T) {
	_, err := BuildToolCommand(ToolInvocation{Program: "p", Flags: []string{"  "}})
	require.Error(t, err)
}

func TestBuildToolCommandRejectsNULByte(t *testing.T) {
	_, err := BuildToolCommand(ToolInvocation{Program: "p\x00"})
	require.Error(t, err)
}
