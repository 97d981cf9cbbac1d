package remotecall

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAssembleFirstErrorWins(t *testing.T) {
	leaseErr := NewCredentialTransferError("dial", errors.New("connection refused"))
	resolveErr := NewAmbiguousModeError()
	result := &ExecutionResult{Status: StatusSuccess, Executed: true}

	env := Assemble(leaseErr, resolveErr, result)
	require.Equal(t, StatusError, env.Status)
	require.Equal(t, ErrCodeCredentialTransfer, env.Error.Code)
	require.Contains(t, env.Error.Message, "connection refused")
	require.Nil(t, env.AllResults)

	env = Assemble(nil, resolveErr, result)
	require.Equal(t, ErrCodeAmbiguousMode, env.Error.Code)
}

func TestAssembleSuccess(t *testing.T) {
	primary := &HostOutcome{Host: "10.0.0.5", Stdout: "up 3 days"}
	result := &ExecutionResult{
		Status:   StatusSuccess,
		Primary:  primary,
		Steps:    []StepOutcome{{Task: "shell:uptime", Focus: true, Result: []HostOutcome{*primary}}},
		Target:   map[string]interface{}{"host": "10.0.0.5"},
		Executed: true,
	}

	env := Assemble(nil, nil, result)
	require.Equal(t, StatusSuccess, env.Status)
	require.Nil(t, env.Error)
	require.Equal(t, "up 3 days", env.Data.Stdout)
	require.Len(t, env.AllResults, 1)

	raw, err := json.Marshal(env)
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Contains(t, decoded, "target")
	require.Contains(t, decoded, "all_results")
	require.Nil(t, decoded["error"])
}

func TestAssembleOmitsAbsentTarget(t *testing.T) {
	failure := HostOutcome{Host: "10.0.0.5", RC: 1, Failed: true, Msg: "unreachable"}
	result := &ExecutionResult{
		Status:   StatusError,
		Steps:    []StepOutcome{{Task: "shell:id", Focus: true, Result: []HostOutcome{failure}}},
		Primary:  &failure,
		Err:      NewRemoteExecutionFailure(failure, "shell:id"),
		Executed: true,
	}

	env := Assemble(nil, nil, result)
	require.Equal(t, StatusError, env.Status)
	require.Equal(t, ErrCodeRemoteExecution, env.Error.Code)
	require.Equal(t, "10.0.0.5", env.Error.Detail["host"])

	raw, err := json.Marshal(env)
	require.NoError(t, err)
	require.NotContains(t, string(raw), `"target"`)
}

func TestFailureWrapsPlainErrors(t *testing.T) {
	env := Failure(errors.New("boom"))
	require.Equal(t, StatusError, env.Status)
	require.Equal(t, ErrCodeInternal, env.Error.Code)
	require.Equal(t, ErrCodeInternal, env.Err().Code)
}

func TestCredentialLeaseReleaseIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key")
	require.NoError(t, os.WriteFile(path, []byte("secret"), 0o600))

	lease := NewCredentialLease(path, func(string, error) {
		t.Fatal("unexpected release error")
	})
	lease.Release()
	lease.Release()

	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err))

	var nilLease *CredentialLease
	nilLease.Release()
	require.Equal(t, "", nilLease.Path())
}

func TestCredentialLeaseReleaseMissingFile(t *testing.T) {
	lease := NewCredentialLease(filepath.Join(t.TempDir(), "never-written"), func(string, error) {
		t.Fatal("missing file must not be reported")
	})
	lease.Release()
}
