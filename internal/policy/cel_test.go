package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/jumpgate/internal/domain/remotecall"
)

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func linuxRequest(t *testing.T, ip string) remotecall.Request {
	t.Helper()
	req, err := remotecall.NewRequest(remotecall.Input{OSType: "linux", IP: ip, Username: "ops", Command: strPtr("uptime")})
	require.NoError(t, err)
	return req
}

func TestBlankPolicyAllowsEverything(t *testing.T) {
	p, err := NewCELPolicy("   ")
	require.NoError(t, err)
	assert.Empty(t, p.Expression())
	assert.NoError(t, p.Allow(context.Background(), linuxRequest(t, "203.0.113.9")))
}

func TestPolicyAllowsAndDenies(t *testing.T) {
	p, err := NewCELPolicy(`request.ip.startsWith("10.") && request.mode == "command"`)
	require.NoError(t, err)

	assert.NoError(t, p.Allow(context.Background(), linuxRequest(t, "10.1.2.3")))

	err = p.Allow(context.Background(), linuxRequest(t, "192.168.1.1"))
	require.ErrorIs(t, err, remotecall.ErrPolicyDenied)
	assert.Equal(t, p.Expression(), remotecall.AsDomainError(err).Context["expression"])
}

func TestPolicySeesPortAuthAndBastion(t *testing.T) {
	p, err := NewCELPolicy(`request.port == 5985 && request.auth == "password" && !request.use_bastion`)
	require.NoError(t, err)

	req, err := remotecall.NewRequest(remotecall.Input{
		OSType: "windows", IP: "10.0.0.6", Username: "Administrator",
		Password: strPtr("pw"), Command: strPtr("dir"), UseBastion: boolPtr(false),
	})
	require.NoError(t, err)
	assert.NoError(t, p.Allow(context.Background(), req))

	assert.ErrorIs(t, p.Allow(context.Background(), linuxRequest(t, "10.0.0.5")), remotecall.ErrPolicyDenied)
}

func TestPolicyNeverExposesPassword(t *testing.T) {
	p, err := NewCELPolicy(`"password" in request`)
	require.NoError(t, err)

	req, err := remotecall.NewRequest(remotecall.Input{OSType: "linux", IP: "10.0.0.5", Username: "ops", Password: strPtr("pw"), Command: strPtr("id")})
	require.NoError(t, err)
	assert.ErrorIs(t, p.Allow(context.Background(), req), remotecall.ErrPolicyDenied)
}

func TestPolicyRuntimeErrorDenies(t *testing.T) {
	p, err := NewCELPolicy(`request.missing == "x"`)
	require.NoError(t, err)

	err = p.Allow(context.Background(), linuxRequest(t, "10.0.0.5"))
	require.ErrorIs(t, err, remotecall.ErrPolicyDenied)
	assert.Contains(t, remotecall.AsDomainError(err).Context, "reason")
}

func TestPolicyCompileErrors(t *testing.T) {
	_, err := NewCELPolicy(`request.ip ==`)
	assert.Error(t, err)

	_, err = NewCELPolicy(`undefined_var == 1`)
	assert.Error(t, err)

	_, err = NewCELPolicy(`"not a bool"`)
	assert.ErrorContains(t, err, "boolean")
}
