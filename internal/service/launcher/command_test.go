package launcher

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luffy-robotics/luffy/internal/config"
	"github.com/luffy-robotics/luffy/internal/supervisor"
)

// TestSupervisedChildren ensures only enabled children with a command are spawned.
func TestSupervisedChildren(t *testing.T) {
	t.Parallel()

	services := config.Services{
		Gateway: config.ChildService{Enabled: true, Command: "/usr/bin/luffy-gateway"},
		Media:   config.ChildService{Enabled: true},
	}

	children := supervisedChildren(services)
	require.Equal(t, []supervisor.Child{
		{Name: "gateway", Command: "/usr/bin/luffy-gateway"},
	}, children)

	require.Empty(t, supervisedChildren(config.Services{}))
}

// TestFleetServiceNames ensures the registry seed covers every fleet service.
func TestFleetServiceNames(t *testing.T) {
	t.Parallel()

	require.ElementsMatch(t, []string{"gateway", "media", "launcher"}, fleetServiceNames())
}
