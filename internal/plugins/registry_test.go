package plugins

import (
	"context"
	"testing"

	"github.com/kagan-sh/kagan-sub004/internal/security"
	"github.com/stretchr/testify/require"
)

func echoHandler(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	return params, nil
}

func validManifest(id string) Manifest {
	return Manifest{ID: id, Name: "GitHub Sync", Version: "1.0.0", Entrypoint: "github_sync.plugin"}
}

func TestRegistry_RegisterAndInvoke(t *testing.T) {
	r := NewRegistry()

	err := r.RegisterPlugin(validManifest("github_sync"), func(reg *Registrar) error {
		return reg.RegisterOperation(Operation{
			Capability:     "github",
			Method:         "sync",
			Handler:        echoHandler,
			MinimumProfile: security.ProfileOperator,
		})
	})
	require.NoError(t, err)

	result, err := r.Invoke(context.Background(), "github", "sync", security.ProfileOperator, map[string]interface{}{"repo": "a/b"})
	require.NoError(t, err)
	require.Equal(t, map[string]interface{}{"repo": "a/b"}, result)
}

func TestRegistry_RejectsInvalidManifestID(t *testing.T) {
	r := NewRegistry()
	err := r.RegisterPlugin(Manifest{ID: "GitHub-Sync", Name: "x", Version: "1", Entrypoint: "e"}, func(reg *Registrar) error {
		return nil
	})
	require.Error(t, err)
}

func TestRegistry_RollsBackOnZeroOperations(t *testing.T) {
	r := NewRegistry()
	err := r.RegisterPlugin(validManifest("empty_plugin"), func(reg *Registrar) error {
		return nil
	})
	require.Error(t, err)
	require.Empty(t, r.Manifests())
}

func TestRegistry_RollsBackOnRegisterError(t *testing.T) {
	r := NewRegistry()
	err := r.RegisterPlugin(validManifest("broken_plugin"), func(reg *Registrar) error {
		require.NoError(t, reg.RegisterOperation(Operation{Capability: "github", Method: "sync", Handler: echoHandler}))
		return assertError("boom")
	})
	require.Error(t, err)
	_, ok := r.Lookup("github", "sync")
	require.False(t, ok)
}

func TestRegistry_RejectsDuplicateCapabilityMethodAcrossPlugins(t *testing.T) {
	r := NewRegistry()
	register := func(reg *Registrar) error {
		return reg.RegisterOperation(Operation{Capability: "github", Method: "sync", Handler: echoHandler})
	}
	require.NoError(t, r.RegisterPlugin(validManifest("plugin_one"), register))

	err := r.RegisterPlugin(validManifest("plugin_two"), register)
	require.Error(t, err)
	require.Contains(t, err.Error(), "already registered")
}

func TestRegistry_ProfileCeilingDeniesLowerProfile(t *testing.T) {
	r := NewRegistry()
	err := r.RegisterPlugin(validManifest("github_sync"), func(reg *Registrar) error {
		return reg.RegisterOperation(Operation{
			Capability:     "github",
			Method:         "sync",
			Handler:        echoHandler,
			MinimumProfile: security.ProfileMaintainer,
		})
	})
	require.NoError(t, err)

	_, err = r.Invoke(context.Background(), "github", "sync", security.ProfileOperator, nil)
	require.Error(t, err)
	var denied *ProfileDeniedError
	require.ErrorAs(t, err, &denied)
}

func TestRegistry_PolicyHookDeniesFalsyExpression(t *testing.T) {
	r := NewRegistry()
	err := r.RegisterPlugin(validManifest("github_sync"), func(reg *Registrar) error {
		return reg.RegisterOperation(Operation{
			Capability:     "github",
			Method:         "sync",
			Handler:        echoHandler,
			MinimumProfile: security.ProfileOperator,
			PolicyHook:     `params["repo"] == "allowed/repo"`,
		})
	})
	require.NoError(t, err)

	_, err = r.Invoke(context.Background(), "github", "sync", security.ProfileOperator, map[string]interface{}{"repo": "other/repo"})
	require.Error(t, err)
	var hookErr *PolicyHookError
	require.ErrorAs(t, err, &hookErr)

	result, err := r.Invoke(context.Background(), "github", "sync", security.ProfileOperator, map[string]interface{}{"repo": "allowed/repo"})
	require.NoError(t, err)
	require.NotNil(t, result)
}

func TestRegistry_PolicyHookSyntaxErrorDeniesRatherThanAllows(t *testing.T) {
	r := NewRegistry()
	err := r.RegisterPlugin(validManifest("github_sync"), func(reg *Registrar) error {
		return reg.RegisterOperation(Operation{
			Capability: "github",
			Method:     "sync",
			Handler:    echoHandler,
			PolicyHook: "this is not valid starlark ===",
		})
	})
	require.NoError(t, err)

	_, err = r.Invoke(context.Background(), "github", "sync", security.ProfileMaintainer, nil)
	require.Error(t, err)
	var hookErr *PolicyHookError
	require.ErrorAs(t, err, &hookErr)
}

func TestRegistry_ParamSchemaRejectsMissingRequiredField(t *testing.T) {
	r := NewRegistry()
	err := r.RegisterPlugin(validManifest("github_sync"), func(reg *Registrar) error {
		return reg.RegisterOperation(Operation{
			Capability:     "github",
			Method:         "sync",
			Handler:        echoHandler,
			MinimumProfile: security.ProfileOperator,
			ParamSchema:    `{"type":"object","required":["repo"],"properties":{"repo":{"type":"string"}}}`,
		})
	})
	require.NoError(t, err)

	_, err = r.Invoke(context.Background(), "github", "sync", security.ProfileOperator, map[string]interface{}{})
	require.Error(t, err)
	var paramErr *ParamValidationError
	require.ErrorAs(t, err, &paramErr)

	result, err := r.Invoke(context.Background(), "github", "sync", security.ProfileOperator, map[string]interface{}{"repo": "a/b"})
	require.NoError(t, err)
	require.NotNil(t, result)
}

func TestRegistry_InvalidParamSchemaRejectedAtRegistration(t *testing.T) {
	r := NewRegistry()
	err := r.RegisterPlugin(validManifest("github_sync"), func(reg *Registrar) error {
		return reg.RegisterOperation(Operation{
			Capability:  "github",
			Method:      "sync",
			Handler:     echoHandler,
			ParamSchema: `{not valid json`,
		})
	})
	require.Error(t, err)
}

type assertError string

func (e assertError) Error() string { return string(e) }
