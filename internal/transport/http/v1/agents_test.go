package v1

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wwan-labs/wwan-avs/domain"
)

func TestAgentDirectoryOverHTTP(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/agents", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var listing struct {
		Agents []domain.Agent `json:"agents"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	require.Len(t, listing.Agents, 1)

	address := env.agent.Address()
	rec = env.do(t, http.MethodGet, "/v1/agents/"+address, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var agent domain.Agent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &agent))
	require.Equal(t, "price-agent", agent.Metadata.Name)
	require.True(t, agent.IsActive)

	rec = env.do(t, http.MethodDelete, "/v1/agents/"+address, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/agents/"+address, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRegisterAgentValidatesBody(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/agents/register", `{"metadata":{"name":"x"}}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/agents/register", `{"address":"0xnew"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAllowancesOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	address := env.agent.Address()

	// Submitting without an allowance is forbidden.
	rec := env.do(t, http.MethodPost, "/v1/users/0xuser/tasks",
		fmt.Sprintf(`{"agent_id":%q,"task_type":"price","task_data":"{}","payment":"5"}`, address))
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/users/0xuser/allowances",
		fmt.Sprintf(`{"agent_id":%q,"allowance":"100"}`, address))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/users/0xuser/allowances", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var listing struct {
		Allowances []domain.Allowance `json:"allowances"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	require.Len(t, listing.Allowances, 1)

	rec = env.do(t, http.MethodPost, "/v1/users/0xuser/tasks",
		fmt.Sprintf(`{"agent_id":%q,"task_type":"price","task_data":"{}","payment":"5"}`, address))
	require.Equal(t, http.StatusCreated, rec.Code)
	task := decodeTask(t, rec)
	require.Equal(t, domain.TaskStatusSubmitted, task.Status)

	// Granting to an unknown agent fails.
	rec = env.do(t, http.MethodPost, "/v1/users/0xuser/allowances",
		`{"agent_id":"0xghost","allowance":"100"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
