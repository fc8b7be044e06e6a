package catalog

import (
	"encoding/json"
	"fmt"

	"rulegov/internal/constants"
	pkgerrors "rulegov/pkg/errors"
	"rulegov/pkg/metrics"
)

// compositeTypes are the node discriminators that carry child conditions.
// AND/OR/NOT and the generic LOGICAL spelling are structurally identical:
// a label plus a conditions list.
var compositeTypes = map[string]bool{
	"AND":     true,
	"OR":      true,
	"NOT":     true,
	"LOGICAL": true,
}

// ValidateConditionTree checks the shape of a boolean expression tree before
// it is admitted into the catalog. The tree is never executed; only depth,
// node count and array sizes are enforced. Runs before any transaction opens.
func ValidateConditionTree(raw json.RawMessage) error {
	if err := validateConditionTree(raw); err != nil {
		metrics.ConditionTreeValidationsTotal.WithLabelValues("rejected").Inc()
		return err
	}
	metrics.ConditionTreeValidationsTotal.WithLabelValues("accepted").Inc()
	return nil
}

func validateConditionTree(raw json.RawMessage) error {
	var root interface{}
	if err := json.Unmarshal(raw, &root); err != nil {
		return pkgerrors.ErrValidation.WithCause(err).WithDetail("message", "condition_tree is not valid JSON")
	}

	node, ok := root.(map[string]interface{})
	if !ok {
		return pkgerrors.ErrValidation.WithDetail("message", "condition_tree must be a JSON object")
	}
	if len(node) == 0 {
		return pkgerrors.ErrValidation.WithDetail("message", "condition_tree must not be empty")
	}

	count := 0
	if err := walkNodes(node, 0, &count); err != nil {
		return err
	}
	return checkArrays(root)
}

// walkNodes enforces the depth and node-count limits. Depth counts composite
// nesting only: a composite's children are one level deeper, leaves add
// nothing.
func walkNodes(node map[string]interface{}, depth int, count *int) error {
	*count++
	if *count > constants.MaxConditionTreeNodes {
		return pkgerrors.ErrValidation.WithDetail("message",
			fmt.Sprintf("condition_tree exceeds maximum node count of %d", constants.MaxConditionTreeNodes))
	}

	nodeType, _ := node["type"].(string)
	if !compositeTypes[nodeType] {
		return nil
	}

	if depth >= constants.MaxConditionTreeDepth {
		return pkgerrors.ErrValidation.WithDetail("message",
			fmt.Sprintf("condition_tree exceeds maximum depth of %d", constants.MaxConditionTreeDepth))
	}

	children, ok := node["conditions"].([]interface{})
	if !ok {
		return pkgerrors.ErrValidation.WithDetail("message",
			"composite node "+nodeType+" requires a conditions array")
	}
	for _, child := range children {
		childNode, ok := child.(map[string]interface{})
		if !ok {
			return pkgerrors.ErrValidation.WithDetail("message", "condition nodes must be JSON objects")
		}
		if err := walkNodes(childNode, depth+1, count); err != nil {
			return err
		}
	}
	return nil
}

// checkArrays walks the raw tree depth-first and rejects any array over the
// limit, including value arrays inside leaf predicates.
func checkArrays(value interface{}) error {
	switch v := value.(type) {
	case []interface{}:
		if len(v) > constants.MaxConditionArrayLen {
			return pkgerrors.ErrValidation.WithDetail("message",
				fmt.Sprintf("condition_tree contains an array exceeding maximum length of %d", constants.MaxConditionArrayLen))
		}
		for _, item := range v {
			if err := checkArrays(item); err != nil {
				return err
			}
		}
	case map[string]interface{}:
		for _, item := range v {
			if err := checkArrays(item); err != nil {
				return err
			}
		}
	}
	return nil
}
