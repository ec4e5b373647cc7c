package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	data := map[string]string{"result": "success"}
	err := formatter.Success(data)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
	assert.Nil(t, resp.Error)
	assert.Empty(t, resp.RunID)
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	err := formatter.Success("All scenarios passed")
	require.NoError(t, err)
	assert.Equal(t, "All scenarios passed\n", buf.String())
}

func TestOutputFormatter_ReportFailure(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	err := formatter.Report(
		map[string]int{"failed": 1},
		"0190c6d2-0000-7000-8000-000000000000",
		&CLIError{Code: CodeTestFailed, Message: "1 scenario(s) failed"},
	)
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeTestFailed, resp.Error.Code)
	assert.Equal(t, "1 scenario(s) failed", resp.Error.Message)
	assert.Equal(t, "0190c6d2-0000-7000-8000-000000000000", resp.RunID)
	assert.NotNil(t, resp.Data, "payload is kept on failure")
}

func TestOutputFormatter_ReportIsIndentedAndUnescaped(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	err := formatter.Report(map[string]string{"pattern": "<dir>/a&b"}, "", nil)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "\n  \"status\": \"ok\"")
	assert.Contains(t, out, "<dir>/a&b")
	assert.NotContains(t, out, "run_id")
}

func TestCLIError_Details(t *testing.T) {
	cliErr := CLIError{
		Code:    CodeHarness,
		Message: "1 scenario(s) could not be run",
		Details: []string{"overwrite.yaml"},
	}

	data, err := json.Marshal(cliErr)
	require.NoError(t, err)
	assert.JSONEq(t, `{"code":"E_HARNESS","message":"1 scenario(s) could not be run","details":["overwrite.yaml"]}`, string(data))
}
