package integration

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"rulegov/internal/approval"
	"rulegov/internal/audit"
	"rulegov/internal/catalog"
	"rulegov/internal/logger"
	"rulegov/internal/ruleset"
)

type governanceServices struct {
	Catalog  catalog.Service
	RuleSets ruleset.Service
	Approval approval.Service
	Audit    audit.Service
}

func newGovernanceServices(db *sql.DB) *governanceServices {
	log := logger.NopLogger()
	auditor := audit.NewRecorder()

	catalogRepo := catalog.NewRepository(db)
	rulesetRepo := ruleset.NewRepository(db)
	approvalRepo := approval.NewRepository(db)
	auditRepo := audit.NewRepository(db)

	stores := map[approval.EntityType]approval.EntityStore{
		approval.EntityRuleVersion:    catalog.NewVersionStore(catalogRepo),
		approval.EntityRuleSetVersion: ruleset.NewVersionStore(rulesetRepo),
	}

	return &governanceServices{
		Catalog:  catalog.NewService(db, catalogRepo, auditor, log),
		RuleSets: ruleset.NewService(db, rulesetRepo, auditor, log),
		Approval: approval.NewService(db, approvalRepo, auditor, stores, log),
		Audit:    audit.NewService(auditRepo),
	}
}

func simpleConditionTree() json.RawMessage {
	return json.RawMessage(`{
		"type": "AND",
		"conditions": [
			{"type": "CONDITION", "field": "amount", "operator": "GT", "value": 1000}
		]
	}`)
}

func createRuleRequest(name string) catalog.CreateRuleRequest {
	return catalog.CreateRuleRequest{
		Name:          name,
		Description:   "integration fixture",
		Type:          catalog.TypeAuth,
		ConditionTree: simpleConditionTree(),
		Priority:      10,
		Action:        catalog.ActionDecline,
	}
}

func rulesetCreateRequest(name string, ruleIDs ...string) ruleset.CreateRuleSetRequest {
	return ruleset.CreateRuleSetRequest{
		Name:        name,
		Description: "integration fixture",
		RuleIDs:     ruleIDs,
	}
}

func uniqueName(prefix string, n int) string {
	return fmt.Sprintf("%s_%d", prefix, n)
}
