package catalog

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "rulegov/pkg/errors"
)

func nestedAnd(levels int) json.RawMessage {
	leaf := `{"type": "CONDITION", "field": "amount", "operator": "GT", "value": 1000}`
	tree := leaf
	for i := 0; i < levels; i++ {
		tree = fmt.Sprintf(`{"type": "AND", "conditions": [%s]}`, tree)
	}
	return json.RawMessage(tree)
}

func TestValidateConditionTree_SimpleLeaf(t *testing.T) {
	tree := json.RawMessage(`{"type": "CONDITION", "field": "country", "operator": "EQ", "value": "SG"}`)
	assert.NoError(t, ValidateConditionTree(tree))
}

func TestValidateConditionTree_CompositeWithMixedChildren(t *testing.T) {
	tree := json.RawMessage(`{
		"type": "OR",
		"conditions": [
			{"type": "CONDITION", "field": "amount", "operator": "GT", "value": 5000},
			{"type": "AND", "conditions": [
				{"type": "CONDITION", "field": "country", "operator": "IN", "value": ["SG", "MY", "TH"]},
				{"type": "NOT", "conditions": [
					{"type": "CONDITION", "field": "verified", "operator": "EQ", "value": true}
				]}
			]}
		]
	}`)
	assert.NoError(t, ValidateConditionTree(tree))
}

func TestValidateConditionTree_GenericLogicalSpelling(t *testing.T) {
	tree := json.RawMessage(`{
		"type": "LOGICAL",
		"operator": "AND",
		"conditions": [
			{"type": "CONDITION", "field": "mcc", "operator": "EQ", "value": "7995"}
		]
	}`)
	assert.NoError(t, ValidateConditionTree(tree))
}

func TestValidateConditionTree_RejectsNonObject(t *testing.T) {
	for name, tree := range map[string]string{
		"array":  `[{"type": "CONDITION"}]`,
		"string": `"t"`,
		"number": `42`,
		"null":   `null`,
	} {
		t.Run(name, func(t *testing.T) {
			err := ValidateConditionTree(json.RawMessage(tree))
			assert.True(t, pkgerrors.IsValidation(err))
		})
	}
}

func TestValidateConditionTree_RejectsEmptyObject(t *testing.T) {
	err := ValidateConditionTree(json.RawMessage(`{}`))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsValidation(err))
	assert.Contains(t, err.Error(), "must not be empty")
}

func TestValidateConditionTree_RejectsMalformedJSON(t *testing.T) {
	err := ValidateConditionTree(json.RawMessage(`{"type": "AND",`))
	assert.True(t, pkgerrors.IsValidation(err))
}

func TestValidateConditionTree_DepthAtLimit(t *testing.T) {
	assert.NoError(t, ValidateConditionTree(nestedAnd(10)))
}

func TestValidateConditionTree_DepthOverLimit(t *testing.T) {
	err := ValidateConditionTree(nestedAnd(11))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsValidation(err))
	assert.Contains(t, err.Error(), "exceeds maximum depth of 10")
}

func TestValidateConditionTree_NodeCountOverLimit(t *testing.T) {
	// One OR with 101 leaves per child group keeps depth shallow while
	// pushing the total node count past 1000.
	var leaves []string
	for i := 0; i < 1001; i++ {
		leaves = append(leaves, fmt.Sprintf(`{"field": "f%d", "operator": "EQ", "value": 1}`, i))
	}
	// Split across composites so no single array crosses the array limit.
	var groups []string
	for i := 0; i < len(leaves); i += 100 {
		end := i + 100
		if end > len(leaves) {
			end = len(leaves)
		}
		groups = append(groups, fmt.Sprintf(`{"type": "AND", "conditions": [%s]}`, strings.Join(leaves[i:end], ",")))
	}
	tree := fmt.Sprintf(`{"type": "OR", "conditions": [%s]}`, strings.Join(groups, ","))

	err := ValidateConditionTree(json.RawMessage(tree))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds maximum node count of 1000")
}

func TestValidateConditionTree_ValueArrayOverLimit(t *testing.T) {
	values := make([]string, 101)
	for i := range values {
		values[i] = fmt.Sprintf(`"v%d"`, i)
	}
	tree := fmt.Sprintf(`{"type": "CONDITION", "field": "country", "operator": "IN", "value": [%s]}`, strings.Join(values, ","))

	err := ValidateConditionTree(json.RawMessage(tree))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "array exceeding maximum length of 100")
}

func TestValidateConditionTree_NestedValueArrayChecked(t *testing.T) {
	// Arrays are checked anywhere in the body, not just conditions lists.
	values := make([]string, 101)
	for i := range values {
		values[i] = "1"
	}
	tree := fmt.Sprintf(`{"type": "CONDITION", "field": "geo", "operator": "WITHIN", "value": {"points": [%s]}}`, strings.Join(values, ","))

	err := ValidateConditionTree(json.RawMessage(tree))
	assert.True(t, pkgerrors.IsValidation(err))
}

func TestValidateConditionTree_CompositeWithoutConditions(t *testing.T) {
	err := ValidateConditionTree(json.RawMessage(`{"type": "AND"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires a conditions array")
}

func TestResolveAction_Defaults(t *testing.T) {
	cases := map[RuleType]RuleAction{
		TypeAllowlist:  ActionApprove,
		TypeBlocklist:  ActionDecline,
		TypeAuth:       ActionDecline,
		TypeMonitoring: ActionReview,
	}
	for ruleType, want := range cases {
		action, err := ResolveAction(ruleType, "")
		require.NoError(t, err)
		assert.Equal(t, want, action, string(ruleType))
	}
}

func TestResolveAction_Compatibility(t *testing.T) {
	action, err := ResolveAction(TypeAuth, ActionApprove)
	require.NoError(t, err)
	assert.Equal(t, ActionApprove, action)

	_, err = ResolveAction(TypeAllowlist, ActionDecline)
	assert.True(t, pkgerrors.IsValidation(err))

	_, err = ResolveAction(TypeMonitoring, ActionApprove)
	assert.True(t, pkgerrors.IsValidation(err))
}
