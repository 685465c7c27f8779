package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllInstances_OrderedByServerThenIndex(t *testing.T) {
	cfg := validConfig()

	insts := cfg.AllInstances()

	require := assert.New(t)
	require.Len(insts, 3)
	require.Equal("billing-0", insts[0].Name)
	require.Equal("users-0", insts[1].Name)
	require.Equal("users-1", insts[2].Name)
	require.Equal(9100, insts[1].Port)
	require.Equal(9101, insts[2].Port)
}

func TestPortSet_IncludesGatewayAndInstances(t *testing.T) {
	cfg := validConfig()

	ports := cfg.PortSet()

	assert.Contains(t, ports, 9000)
	assert.Contains(t, ports, 9100)
	assert.Contains(t, ports, 9101)
	assert.Contains(t, ports, 9200)
	assert.Len(t, ports, 4)
}

func TestModuleOwners_MapsEachModuleToItsServer(t *testing.T) {
	cfg := validConfig()

	owners := cfg.ModuleOwners()

	assert.Equal(t, "users", owners["accounts"])
	assert.Equal(t, "billing", owners["invoices"])
}

func TestSortedServerNames_Ascending(t *testing.T) {
	cfg := validConfig()

	assert.Equal(t, []string{"billing", "users"}, cfg.SortedServerNames())
}
