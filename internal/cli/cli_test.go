package cli

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func commandNames(t *testing.T, cmds []*cobra.Command) map[string]bool {
	t.Helper()
	names := make(map[string]bool, len(cmds))
	for _, c := range cmds {
		names[c.Name()] = true
	}
	return names
}

func TestBuildServerCLI(t *testing.T) {
	cmd := BuildServerCLI()
	require.NotNil(t, cmd)
	assert.Equal(t, "jdcp-server", cmd.Use)

	names := commandNames(t, cmd.Commands())
	for _, want := range []string{"start", "stop", "stat", "cancel", "idle", "sync", "verify", "clean"} {
		assert.True(t, names[want], "expected %s subcommand", want)
	}

	addrFlag := cmd.PersistentFlags().Lookup("addr")
	require.NotNil(t, addrFlag)
	assert.Equal(t, "localhost:5327", addrFlag.DefValue)
}

func TestBuildWorkerCLI(t *testing.T) {
	cmd := BuildWorkerCLI()
	require.NotNil(t, cmd)
	assert.Equal(t, "jdcp-worker", cmd.Use)

	names := commandNames(t, cmd.Commands())
	assert.True(t, names["start"])
	assert.True(t, names["stop"])

	var start *cobra.Command
	for _, c := range cmd.Commands() {
		if c.Name() == "start" {
			start = c
		}
	}
	require.NotNil(t, start)
	assert.NotNil(t, start.Flags().Lookup("upstream"))
	assert.NotNil(t, start.Flags().Lookup("workers"))
}

func TestBuildHubCLI(t *testing.T) {
	cmd := BuildHubCLI()
	require.NotNil(t, cmd)
	assert.Equal(t, "jdcp-hub", cmd.Use)

	names := commandNames(t, cmd.Commands())
	assert.True(t, names["start"])
	assert.True(t, names["stop"])
}

func TestJobState(t *testing.T) {
	assert.Equal(t, "New", jobState(0))
	assert.Equal(t, "Running", jobState(1))
	assert.Equal(t, "Stalled", jobState(2))
	assert.Equal(t, "Complete", jobState(3))
	assert.Equal(t, "Cancelled", jobState(4))
	assert.Equal(t, "Unknown", jobState(99))
}

func TestParseJobID_Invalid(t *testing.T) {
	_, err := parseJobID("not-a-uuid")
	assert.Error(t, err)
}

func TestVerify_DialFailure(t *testing.T) {
	// An address nothing listens on should fail to verify, but must not
	// hang — grpc.NewClient dials lazily, so the error surfaces from the
	// RPC itself rather than from dialCompute.
	err := verify("127.0.0.1:1")
	assert.Error(t, err)
}
