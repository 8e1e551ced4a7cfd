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

	"github.com/patdav1503/securelog-msg-network/internal/eventlog"
	"github.com/patdav1503/securelog-msg-network/internal/model"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	err := formatter.Success(map[string]string{"result": "success"})
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Error("E202", "not found", nil))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E202", resp.Error.Code)
	assert.Equal(t, "not found", resp.Error.Message)
	assert.Nil(t, resp.Error.Details)
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf, Verbose: true}

	require.NoError(t, formatter.Error("E204", "invalid owner", map[string]string{"field": "owner"}))
	assert.Equal(t, "Error [E204]: invalid owner\nDetails: map[field:owner]\n", buf.String())
}

func TestOutputFormatter_Emit(t *testing.T) {
	buf := &bytes.Buffer{}
	text := &OutputFormatter{Format: "text", Writer: buf}
	require.NoError(t, text.Emit(1, func(w io.Writer) { fmt.Fprint(w, "one") }))
	assert.Equal(t, "one", buf.String())

	buf.Reset()
	js := &OutputFormatter{Format: "json", Writer: buf}
	require.NoError(t, js.Emit(1, func(w io.Writer) { fmt.Fprint(w, "one") }))
	assert.JSONEq(t, `{"status":"ok","data":1}`, buf.String())
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	out := &bytes.Buffer{}
	diag := &bytes.Buffer{}

	quiet := &OutputFormatter{Writer: out, ErrWriter: diag}
	quiet.VerboseLog("hidden %d", 1)
	assert.Empty(t, diag.String())

	loud := &OutputFormatter{Writer: out, ErrWriter: diag, Verbose: true}
	loud.VerboseLog("shown %d", 2)
	assert.Equal(t, "shown 2\n", diag.String())
	assert.Empty(t, out.String())
}

func TestFail_AccessDenied(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	denied := &model.AccessDeniedError{
		Participant: model.NewRef(model.KindMember, "alice@email.com"),
		Operation:   model.OpSubmit,
		Resource:    model.Namespace + "." + model.TxPostErrorMessage,
		Reason:      model.ReasonUnauthorizedSubmitter,
	}
	err := formatter.Fail(fmt.Errorf("submit: %w", denied))

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, ExitFailure, exitErr.Code)
	assert.True(t, exitErr.Reported)
	assert.True(t, model.IsAccessDenied(err))

	var resp struct {
		Status string `json:"status"`
		Error  struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "E201", resp.Error.Code)
	assert.Equal(t, "unauthorized-submitter", resp.Error.Details["reason"])
	assert.Equal(t, "SUBMIT", resp.Error.Details["operation"])
}

func TestFail_ChainBroken(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	err := formatter.Fail(&eventlog.ChainError{Seq: 3, Reason: "hash mismatch"})
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeChainBroken, resp.Error.Code)
}

func TestFail_PassThrough(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	plain := errors.New("disk on fire")
	assert.Same(t, plain, formatter.Fail(plain))

	exitErr := NewExitError(ExitCommandError, "bad flag")
	assert.Same(t, exitErr, formatter.Fail(exitErr))
	assert.Empty(t, buf.String())
}

func TestExitError(t *testing.T) {
	wrapped := WrapExitError(ExitCommandError, "failed to open database", errors.New("locked"))
	assert.Equal(t, "failed to open database: locked", wrapped.Error())
	assert.Equal(t, ExitCommandError, GetExitCode(fmt.Errorf("outer: %w", wrapped)))

	assert.Equal(t, "boom", NewExitError(ExitFailure, "boom").Error())
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
}
