package cli

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patdav1503/securelog-msg-network/internal/engine"
	"github.com/patdav1503/securelog-msg-network/internal/fixture"
	"github.com/patdav1503/securelog-msg-network/internal/ir"
	"github.com/patdav1503/securelog-msg-network/internal/metrics"
	"github.com/patdav1503/securelog-msg-network/internal/model"
	"github.com/patdav1503/securelog-msg-network/internal/store"
)

const (
	asSystem = "System#system@email.com"
	asAlice  = "Member#alice@email.com"
	asBob    = "Level2#bob@email.com"
	asGeorge = "Level3#george@email.com"

	postPayload = `{"messageId":"51","owner":"Member#alice@email.com","errorType":"Math Module","errorSeverity":"WARNING","errorText":"overflow"}`
)

func TestInit(t *testing.T) {
	db := filepath.Join(t.TempDir(), "securelog.db")

	stdout, _, err := execute(t, "--db", db, "init", "--fixture", networkFixture)
	require.NoError(t, err)
	assert.Equal(t, "Provisioned 4 participants and 2 messages in "+db+"\n", stdout)

	_, err = os.Stat(db)
	require.NoError(t, err)

	t.Run("twice fails", func(t *testing.T) {
		_, _, err := execute(t, "--db", db, "init", "--fixture", networkFixture)
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))
		assert.Contains(t, err.Error(), "failed to provision network")
	})

	t.Run("missing fixture", func(t *testing.T) {
		_, _, err := execute(t, "--db", db, "init", "--fixture", "nope.yaml")
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})
}

func TestSessionRequiresDatabase(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.db")
	_, _, err := execute(t, "--db", missing, "get", "ErrorMessage", "1", "--as", asAlice)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "database not found")
}

func TestSubmit(t *testing.T) {
	db := newNetwork(t)

	stdout, _, err := execute(t, "--db", db, "submit", model.TxPostErrorMessage, "--as", asSystem, "--payload", postPayload)
	require.NoError(t, err)
	assert.Contains(t, stdout, "postErrorMessage committed 2 event(s)")
	assert.Contains(t, stdout, " "+model.EventErrorMessagePosted+" ")
	assert.Contains(t, stdout, " "+model.EventErrorMessageSnapshot+" ")

	stdout, _, err = execute(t, "--db", db, "get", "ErrorMessage", "51", "--as", asAlice)
	require.NoError(t, err)
	assert.Contains(t, stdout, "ErrorMessage#51\n")
	assert.Contains(t, stdout, "  errorSeverity: WARNING\n")
	assert.Contains(t, stdout, "  errorStatus: NEW\n")
	assert.Contains(t, stdout, "  owner: Member#alice@email.com\n")
}

func TestSubmit_PayloadFile(t *testing.T) {
	db := newNetwork(t)
	file := filepath.Join(t.TempDir(), "status.yaml")
	require.NoError(t, os.WriteFile(file, []byte("oldMessage: \"1\"\nnewStatus: WORKING\n"), 0644))

	stdout, _, err := execute(t, "--db", db, "submit", model.TxUpdateErrorMessageStatus, "--as", asAlice, "--payload-file", file)
	require.NoError(t, err)
	assert.Contains(t, stdout, model.EventErrorMessageStatusUpdated)
}

func TestSubmit_DeniedJSON(t *testing.T) {
	db := newNetwork(t)

	stdout, _, err := execute(t, "--db", db, "--format", "json", "submit", model.TxPostErrorMessage, "--as", asAlice, "--payload", postPayload)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, model.IsAccessDenied(err))

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.True(t, exitErr.Reported)

	var resp struct {
		Status string `json:"status"`
		Error  struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "E201", resp.Error.Code)
	assert.Equal(t, "unauthorized-submitter", resp.Error.Details["reason"])

	stdout, _, err = execute(t, "--db", db, "events")
	require.NoError(t, err)
	assert.Equal(t, "No events.\n", stdout)
}

func TestSubmit_InvalidInput(t *testing.T) {
	db := newNetwork(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "bad caller", args: []string{"--as", "alice"}, want: "invalid --as"},
		{name: "bad json", args: []string{"--as", asSystem, "--payload", "{"}, want: "invalid --payload JSON"},
		{name: "both sources", args: []string{"--as", asSystem, "--payload", "{}", "--payload-file", "x.yaml"}, want: "mutually exclusive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"--db", db, "submit", model.TxPostErrorMessage}, tt.args...)
			_, _, err := execute(t, args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestList(t *testing.T) {
	db := newNetwork(t)

	stdout, _, err := execute(t, "--db", db, "list", "ErrorMessage", "--as", asGeorge)
	require.NoError(t, err)
	first := strings.Index(stdout, "ErrorMessage#1\n")
	second := strings.Index(stdout, "ErrorMessage#2\n")
	require.GreaterOrEqual(t, first, 0)
	assert.Greater(t, second, first)

	stdout, _, err = execute(t, "--db", db, "list", "ErrorMessage", "--as", asSystem)
	require.NoError(t, err)
	assert.Equal(t, "No readable ErrorMessage records.\n", stdout)

	stdout, _, err = execute(t, "--db", db, "--format", "json", "list", "ErrorMessage", "--as", asBob)
	require.NoError(t, err)
	var resp struct {
		Data []map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "2", resp.Data[0]["messageId"])
	assert.Equal(t, asBob, resp.Data[0]["owner"])
}

func TestGet_Denied(t *testing.T) {
	db := newNetwork(t)

	stdout, _, err := execute(t, "--db", db, "get", "ErrorMessage", "2", "--as", asAlice)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout, "Error [E201]:")

	stdout, _, err = execute(t, "--db", db, "get", "ErrorMessage", "99", "--as", asGeorge)
	require.Error(t, err)
	assert.Contains(t, stdout, "Error [E202]:")
}

func TestExists(t *testing.T) {
	db := newNetwork(t)

	tests := []struct {
		id   string
		as   string
		want string
	}{
		{id: "1", as: asAlice, want: "true\n"},
		{id: "2", as: asAlice, want: "false\n"},
		{id: "99", as: asGeorge, want: "false\n"},
	}
	for _, tt := range tests {
		t.Run(tt.id+" as "+tt.as, func(t *testing.T) {
			stdout, _, err := execute(t, "--db", db, "exists", "ErrorMessage", tt.id, "--as", tt.as)
			require.NoError(t, err)
			assert.Equal(t, tt.want, stdout)
		})
	}
}

func TestCreateUpdateDelete(t *testing.T) {
	db := newNetwork(t)
	record := `{"messageId":"60","creator":"System#system@email.com","owner":"Member#alice@email.com","errorType":"IO","errorSeverity":"ERROR","errorStatus":"NEW","errorText":"disk full"}`

	stdout, _, err := execute(t, "--db", db, "create", "ErrorMessage", "--as", asSystem, "--record", record)
	require.NoError(t, err)
	assert.Equal(t, "Created ErrorMessage#60\n", stdout)

	stdout, _, err = execute(t, "--db", db, "update", "ErrorMessage", "60", "--as", asAlice, "--set", "errorStatus=WORKING")
	require.NoError(t, err)
	assert.Equal(t, "Updated ErrorMessage#60\n", stdout)

	stdout, _, err = execute(t, "--db", db, "update", "ErrorMessage", "60", "--as", asAlice, "--set", "errorStatus=WORKING")
	require.NoError(t, err)
	assert.Equal(t, "No changes to ErrorMessage#60\n", stdout)

	_, _, err = execute(t, "--db", db, "delete", "ErrorMessage", "60", "--as", asBob)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	stdout, _, err = execute(t, "--db", db, "delete", "ErrorMessage", "60", "--as", asAlice)
	require.NoError(t, err)
	assert.Equal(t, "Deleted ErrorMessage#60\n", stdout)

	stdout, _, err = execute(t, "--db", db, "--format", "json", "events")
	require.NoError(t, err)
	var resp struct {
		Data []model.Event `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	kinds := make([]string, len(resp.Data))
	for i, e := range resp.Data {
		kinds[i] = e.Kind
	}
	assert.Equal(t, []string{model.EventRecordCreated, model.EventRecordUpdated, model.EventRecordDeleted}, kinds)
	assert.Equal(t, "", resp.Data[0].PrevHash)
	assert.Equal(t, resp.Data[0].Hash, resp.Data[1].PrevHash)
}

func TestCreate_InvalidRecord(t *testing.T) {
	db := newNetwork(t)

	_, _, err := execute(t, "--db", db, "create", "ErrorMessage", "--as", asSystem, "--record", `{"messageId":"60","bogus":1}`)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid --record JSON")
}

func TestEvents_From(t *testing.T) {
	db := newNetwork(t)
	_, _, err := execute(t, "--db", db, "submit", model.TxPostErrorMessage, "--as", asSystem, "--payload", postPayload)
	require.NoError(t, err)

	stdout, _, err := execute(t, "--db", db, "events", "--from", "1")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 1)
	assert.True(t, strings.HasPrefix(lines[0], "2 "), lines[0])
	assert.Contains(t, lines[0], model.EventErrorMessageSnapshot)

	_, _, err = execute(t, "--db", db, "events", "--from", "-1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestAudit(t *testing.T) {
	db := newNetwork(t)

	stdout, _, err := execute(t, "--db", db, "audit")
	require.NoError(t, err)
	assert.Equal(t, "Chain intact: 0 events, head (none)\n", stdout)

	_, _, err = execute(t, "--db", db, "submit", model.TxPostErrorMessage, "--as", asSystem, "--payload", postPayload)
	require.NoError(t, err)

	stdout, _, err = execute(t, "--db", db, "--format", "json", "audit")
	require.NoError(t, err)
	var resp struct {
		Data struct {
			Events int64  `json:"events"`
			Head   string `json:"head"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, int64(2), resp.Data.Events)
	assert.Len(t, resp.Data.Head, 64)
}

func TestFollowChain(t *testing.T) {
	ctx := context.Background()
	g := store.NewMemory()
	network, err := fixture.Load(networkFixture)
	require.NoError(t, err)
	require.NoError(t, fixture.Provision(ctx, g, network))

	eng, err := engine.New(ctx, g, engine.WithPollInterval(10*time.Millisecond))
	require.NoError(t, err)
	_, err = eng.Submit(ctx, model.MustParseRef(asSystem), model.TxPostErrorMessage, ir.IRObject{
		"messageId":     ir.IRString("51"),
		"owner":         ir.IRString(asAlice),
		"errorType":     ir.IRString("Math Module"),
		"errorSeverity": ir.IRString("WARNING"),
		"errorText":     ir.IRString("overflow"),
	})
	require.NoError(t, err)

	rec := metrics.New(nil)
	followCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		done <- followChain(followCtx, eng, rec, &OutputFormatter{Writer: io.Discard})
	}()

	require.Eventually(t, func() bool {
		return promtest.ToFloat64(rec.AuditHead) == 2
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, float64(2), promtest.ToFloat64(rec.Verified))

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("followChain did not stop")
	}
}

func TestServeMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := metrics.New(reg)
	rec.AuditVerified(3, 3)

	listening := make(chan string, 1)
	opts := &AuditOptions{RootOptions: &RootOptions{}, listening: listening}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- serveMetrics(ctx, "127.0.0.1:0", reg, opts)
	}()

	var addr string
	select {
	case addr = <-listening:
	case err := <-done:
		t.Fatalf("serveMetrics failed: %v", err)
	}

	resp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "securelog_audit_head_seq 3")

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestPolicyShow(t *testing.T) {
	stdout, _, err := execute(t, "policy", "show")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stdout, " 1. CreatorMustBeSystem\n"), stdout)
	assert.Contains(t, stdout, "11. ParticipantReadsSelf\n")
	assert.Contains(t, stdout, "otherwise DENY(unauthorized-submitter) for SUBMIT")

	stdout, _, err = execute(t, "--format", "json", "policy", "show")
	require.NoError(t, err)
	var resp struct {
		Data []RuleView `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	require.Len(t, resp.Data, 11)
	assert.Equal(t, "Level3ReadAll", resp.Data[1].Name)
	assert.NotEmpty(t, resp.Data[1].Summary)
}

func TestPolicyShow_CustomPolicy(t *testing.T) {
	stdout, _, err := execute(t, "--policy", "../../policies/observed.cue", "--format", "json", "policy", "show")
	require.NoError(t, err)
	var resp struct {
		Data []RuleView `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	require.Len(t, resp.Data, 12)
	assert.Equal(t, "WarningsVisible", resp.Data[11].Name)

	_, _, err = execute(t, "--policy", "missing.cue", "policy", "show")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestPolicyCheck(t *testing.T) {
	db := newNetwork(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{
			name: "level3 read",
			args: []string{"READ", "ErrorMessage", "2", "--as", asGeorge},
			want: "ALLOW by rule Level3ReadAll after 2 rule(s)",
		},
		{
			name: "owner status update",
			args: []string{"SUBMIT", model.TxUpdateErrorMessageStatus, "1", "--as", asAlice},
			want: "ALLOW by rule OwnerUpdatesStatus after 9 rule(s)",
		},
		{
			name: "member post",
			args: []string{"SUBMIT", model.TxPostErrorMessage, "--as", asAlice},
			want: "DENY(unauthorized-submitter) by default after 11 rule(s)",
		},
		{
			name: "other owner field",
			args: []string{"UPDATE", "ErrorMessage", "1", "--field", "owner", "--as", asBob},
			want: "DENY(insufficient-access) by default after 11 rule(s)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"--db", db, "policy", "check"}, tt.args...)
			stdout, _, err := execute(t, args...)
			require.NoError(t, err)
			assert.Contains(t, stdout, tt.want)
		})
	}

	t.Run("json", func(t *testing.T) {
		stdout, _, err := execute(t, "--db", db, "--format", "json", "policy", "check", "READ", "ErrorMessage", "1", "--as", asAlice)
		require.NoError(t, err)
		var resp struct {
			Data Explanation `json:"data"`
		}
		require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
		assert.Equal(t, "ALLOW", resp.Data.Decision)
		assert.Equal(t, "OwnerManagesMessage", resp.Data.Rule)
		assert.Equal(t, model.Namespace+".ErrorMessage#1", resp.Data.Resource)
	})

	t.Run("bad operation", func(t *testing.T) {
		_, _, err := execute(t, "--db", db, "policy", "check", "FROB", "ErrorMessage", "--as", asAlice)
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})

	t.Run("missing target", func(t *testing.T) {
		stdout, _, err := execute(t, "--db", db, "policy", "check", "READ", "ErrorMessage", "99", "--as", asAlice)
		require.Error(t, err)
		assert.Contains(t, stdout, "Error [E202]:")
	})
}
