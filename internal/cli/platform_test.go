package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cliconform/internal/platform"
)

func TestPlatformCommand_Text(t *testing.T) {
	out, _, err := execute(t, "platform")
	require.NoError(t, err)

	p := platform.Current()
	assert.Contains(t, out, "Platform: "+p.String())
	for _, c := range platform.All {
		assert.Contains(t, out, string(c))
	}
}

func TestPlatformCommand_JSON(t *testing.T) {
	out, _, err := execute(t, "platform", "--format", "json")
	require.NoError(t, err)

	var response struct {
		Status string       `json:"status"`
		Data   PlatformInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &response))
	assert.Equal(t, "ok", response.Status)
	assert.Equal(t, platform.Current(), response.Data.Platform)
	assert.Len(t, append(response.Data.Capabilities, response.Data.Missing...), len(platform.All))
}
