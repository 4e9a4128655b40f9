package main

import (
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vaultgate/vaultgate/internal/service"
)

func TestPrintJanitorStats(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)

	stats := service.JanitorStats{
		KeysScheduled:    3,
		RecordsDropped:   5,
		KeysSkipped:      1,
		RolesDeleted:     2,
		BlocklistDeleted: 40,
	}
	require.NoError(t, printJanitorStats(w, stats))
	require.NoError(t, w.Close())

	output, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())

	outStr := string(output)
	require.Contains(t, outStr, "Keys scheduled for deletion: 3")
	require.Contains(t, outStr, "Stale records dropped:       5")
	require.Contains(t, outStr, "Keys skipped:                1")
	require.Contains(t, outStr, "Orphaned roles deleted:      2")
	require.Contains(t, outStr, "Blocklist entries purged:    40")
}

func TestCommandsTableIsComplete(t *testing.T) {
	table := commands()
	for _, name := range []string{"migrate", "keys-cleanup", "blocklist-purge", "token-inspect"} {
		cmd, ok := table[name]
		require.True(t, ok, name)
		require.Equal(t, name, cmd.name)
		require.NotEmpty(t, cmd.description)
		require.NotNil(t, cmd.run)
	}
}
