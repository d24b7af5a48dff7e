package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mcdamien/HenscoPOS-sub000/internal/recorder"
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
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error("E001", "sale rejected", nil)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	assert.NotNil(t, resp.Error)
	assert.Equal(t, "E001", resp.Error.Code)
	assert.Equal(t, "sale rejected", resp.Error.Message)
}

func TestOutputFormatter_JSONErrorWithDetails(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	details := map[string]string{"item": "soap:x"}
	err := formatter.Error("E002", "bad item", details)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	assert.NotNil(t, resp.Error)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	err := formatter.Success("deleted soap")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "deleted soap")
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: false,
	}

	err := formatter.Error("E001", "sale rejected", nil)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error [E001]")
	assert.Contains(t, buf.String(), "sale rejected")
}

func TestOutputFormatter_TextErrorVerbose(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: true,
	}

	details := map[string]string{"store": "store-z"}
	err := formatter.Error("E001", "sale rejected", details)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error [E001]")
	assert.Contains(t, buf.String(), "Details:")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{
				Format:  "text",
				Writer:  buf,
				Verbose: tt.verbose,
			}

			formatter.VerboseLog("queued sale %s", "txn-1")

			if tt.wantLog {
				assert.Contains(t, buf.String(), "queued sale txn-1")
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}

type tableRows []string

func (r tableRows) renderText(w io.Writer) error {
	fmt.Fprintln(w, "ID\tNAME")
	for i, name := range r {
		fmt.Fprintf(w, "%d\t%s\n", i+1, name)
	}
	return nil
}

func TestOutputFormatter_TextRenderer(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Success(tableRows{"Soap", "Long grain rice"}))
	assert.Equal(t, "ID  NAME\n1   Soap\n2   Long grain rice\n", buf.String())
}

func TestOutputFormatter_VerboseLogUsesErrWriter(t *testing.T) {
	out, diag := &bytes.Buffer{}, &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: out, ErrWriter: diag, Verbose: true}

	formatter.VerboseLog("syncing")
	assert.Empty(t, out.String())
	assert.Equal(t, "syncing\n", diag.String())
}

func TestRecorderError(t *testing.T) {
	_, err := recorder.New(nil).RecordSale(t.Context(), recorder.SaleInput{StoreID: "store-a"})
	require.True(t, recorder.IsValidation(err))
	assert.Equal(t, ExitFailure, GetExitCode(recorderError("failed", err)))

	assert.Equal(t, ExitCommandError, GetExitCode(recorderError("failed", errors.New("disk full"))))
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitCommandError, GetExitCode(fmt.Errorf("wrapped: %w", NewExitError(ExitCommandError, "x"))))
}

func TestCLIResponse_JSON(t *testing.T) {
	resp := CLIResponse{
		Status: "ok",
		Data:   map[string]int{"count": 42},
	}

	data, err := json.Marshal(resp)
	require.NoError(t, err)

	var decoded CLIResponse
	err = json.Unmarshal(data, &decoded)
	require.NoError(t, err)
	assert.Equal(t, "ok", decoded.Status)
}

func TestCLIError_JSON(t *testing.T) {
	cliErr := CLIError{
		Code:    "E_VALIDATION",
		Message: "sale rejected",
		Details: []string{"lines: cart is empty"},
	}

	data, err := json.Marshal(cliErr)
	require.NoError(t, err)

	var decoded CLIError
	err = json.Unmarshal(data, &decoded)
	require.NoError(t, err)
	assert.Equal(t, "E_VALIDATION", decoded.Code)
	assert.Equal(t, "sale rejected", decoded.Message)
}

func TestErrorCode(t *testing.T) {
	_, err := recorder.New(nil).RecordSale(t.Context(), recorder.SaleInput{StoreID: "store-a"})
	require.Error(t, err)

	code, details := errorCode(recorderError("failed to record sale", err))
	assert.Equal(t, CodeInvalidInput, code)
	assert.Equal(t, map[string]string{"field": "lines"}, details)

	code, details = errorCode(WrapExitError(ExitCommandError, "failed to open database", errors.New("locked")))
	assert.Equal(t, CodeCommandError, code)
	assert.Nil(t, details)

	code, _ = errorCode(NewExitError(ExitFailure, "2 entries not synced"))
	assert.Equal(t, CodeFailed, code)
}
