// Package policy implements the validation policy engine. Acceptance rules
// are expressed in Rego and evaluated with OPA; the rules short-circuit in
// a fixed order: agent activity, task-type capability, oracle price band.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"

	"github.com/wwan-labs/wwan-avs/domain"
)

// Decision is the outcome of policy evaluation.
type Decision struct {
	Valid  bool
	Reason string
}

// Input carries everything the rules need. OraclePrice is only consulted
// for price-bearing results.
type Input struct {
	TaskType    string
	Agent       *domain.Agent
	Result      domain.TaskResult
	OraclePrice float64
}

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.wwan.validation.decision"),
		rego.Module("validation.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// Evaluate applies the acceptance rules to a task result. A nil or unknown
// agent fails the activity rule.
func (e *Engine) Evaluate(ctx context.Context, in Input) (Decision, error) {
	agent := map[string]interface{}{
		"active": false,
		"skills": []interface{}{},
	}
	if in.Agent != nil {
		skills := make([]interface{}, 0, len(in.Agent.Metadata.SkillList))
		for _, s := range in.Agent.Metadata.SkillList {
			skills = append(skills, s)
		}
		agent["active"] = in.Agent.IsActive
		agent["skills"] = skills
	}

	input := map[string]interface{}{
		"task_type":    in.TaskType,
		"agent":        agent,
		"oracle_price": in.OraclePrice,
		"result": map[string]interface{}{
			"kind":  string(in.Result.Kind),
			"price": in.Result.Price,
		},
	}

	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return Decision{}, fmt.Errorf("failed to evaluate policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return Decision{}, fmt.Errorf("policy produced no decision")
	}

	obj, ok := results[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return Decision{}, fmt.Errorf("policy returned unexpected type %T", results[0].Expressions[0].Value)
	}
	valid, _ := obj["valid"].(bool)
	reason, _ := obj["reason"].(string)
	return Decision{Valid: valid, Reason: reason}, nil
}

// DefaultPolicy is the acceptance rule set. Rules are mutually exclusive so
// exactly one decision fires per input; the failure reasons mirror the rule
// order (activity, capability, price band).
const DefaultPolicy = `
package wwan.validation

import rego.v1

decision := {"valid": false, "reason": "agent_inactive"} if {
	not input.agent.active
}

decision := {"valid": false, "reason": "unsupported_task_type"} if {
	input.agent.active
	declares_skills
	not skill_match
}

decision := {"valid": false, "reason": "price_out_of_bounds"} if {
	input.agent.active
	type_ok
	input.result.kind == "price"
	not price_in_band
}

decision := {"valid": true, "reason": ""} if {
	input.agent.active
	type_ok
	result_ok
}

declares_skills if count(input.agent.skills) > 0

skill_match if {
	some skill in input.agent.skills
	skill == input.task_type
}

type_ok if not declares_skills

type_ok if skill_match

# The tolerance band is a fixed policy constant: +/-5% around the oracle
# reference, bounds inclusive.
price_in_band if {
	input.result.price >= input.oracle_price * 0.95
	input.result.price <= input.oracle_price * 1.05
}

result_ok if input.result.kind != "price"

result_ok if {
	input.result.kind == "price"
	price_in_band
}
`
