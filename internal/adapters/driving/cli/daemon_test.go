package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/meridian-labs/radar-cli/internal/core/services"
)

func TestDaemonCmd_Use(t *testing.T) {
	assert.Equal(t, "daemon", daemonCmd.Use)
}

func TestDaemonCmd_IntervalDefault(t *testing.T) {
	flag := daemonCmd.Flags().Lookup("interval")
	assert.NotNil(t, flag)
	assert.Equal(t, services.DefaultInterval.String(), flag.DefValue)
}
