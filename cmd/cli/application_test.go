package cli_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/orgmigrate/cmd/cli"
)

func TestEmbeddedDefaultConfigurationIsYAML(testInstance *testing.T) {
	content, configurationType := cli.EmbeddedDefaultConfiguration()
	require.Equal(testInstance, "yaml", configurationType)
	require.Contains(testInstance, string(content), "repository_pattern:")

	content[0] = '#'
	reloaded, _ := cli.EmbeddedDefaultConfiguration()
	require.NotEqual(testInstance, content[0], reloaded[0])
}
