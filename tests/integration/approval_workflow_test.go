package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"rulegov/internal/approval"
	pkgerrors "rulegov/pkg/errors"
	"rulegov/pkg/pagination"
)

func TestApprovalWorkflow_SubmitAndApprove(t *testing.T) {
	infra := SetupTestInfra(t)
	svc := newGovernanceServices(infra.PostgresDB)

	ctx := context.Background()
	created, err := svc.Catalog.CreateRule(ctx, createRuleRequest("approve_me"), "maker@acme")
	require.NoError(t, err)
	versionID := created.RuleVersion.ID

	result, err := svc.Approval.Submit(ctx, approval.EntityRuleVersion, versionID, "maker@acme", approval.SubmitRequest{})
	require.NoError(t, err)
	assert.Equal(t, approval.TicketPending, result.Approval.Status)
	assert.Equal(t, approval.StatusPendingApproval, result.EntityStatus)

	decided, err := svc.Approval.Approve(ctx, approval.EntityRuleVersion, versionID, "checker@acme", approval.DecisionRequest{Remarks: "looks good"})
	require.NoError(t, err)
	assert.Equal(t, approval.TicketApproved, decided.Status)
	require.NotNil(t, decided.Checker)
	assert.Equal(t, "checker@acme", *decided.Checker)
	require.NotNil(t, decided.DecidedAt)

	version, err := svc.Catalog.GetRuleVersion(ctx, versionID)
	require.NoError(t, err)
	assert.Equal(t, approval.StatusApproved, version.Status)
	require.NotNil(t, version.ApprovedBy)
	assert.Equal(t, "checker@acme", *version.ApprovedBy)
}

func TestApprovalWorkflow_MakerCannotApproveOwnSubmission(t *testing.T) {
	infra := SetupTestInfra(t)
	svc := newGovernanceServices(infra.PostgresDB)

	ctx := context.Background()
	created, err := svc.Catalog.CreateRule(ctx, createRuleRequest("self_approve"), "maker@acme")
	require.NoError(t, err)
	versionID := created.RuleVersion.ID

	_, err = svc.Approval.Submit(ctx, approval.EntityRuleVersion, versionID, "maker@acme", approval.SubmitRequest{})
	require.NoError(t, err)

	_, err = svc.Approval.Approve(ctx, approval.EntityRuleVersion, versionID, "maker@acme", approval.DecisionRequest{})
	assert.Error(t, err)
	assert.True(t, pkgerrors.IsMakerChecker(err))

	// The ticket survives the violation and another checker can decide it.
	decided, err := svc.Approval.Approve(ctx, approval.EntityRuleVersion, versionID, "checker@acme", approval.DecisionRequest{})
	require.NoError(t, err)
	assert.Equal(t, approval.TicketApproved, decided.Status)
}

func TestApprovalWorkflow_RejectAndResubmit(t *testing.T) {
	infra := SetupTestInfra(t)
	svc := newGovernanceServices(infra.PostgresDB)

	ctx := context.Background()
	created, err := svc.Catalog.CreateRule(ctx, createRuleRequest("reject_me"), "maker@acme")
	require.NoError(t, err)
	versionID := created.RuleVersion.ID

	_, err = svc.Approval.Submit(ctx, approval.EntityRuleVersion, versionID, "maker@acme", approval.SubmitRequest{})
	require.NoError(t, err)

	rejected, err := svc.Approval.Reject(ctx, approval.EntityRuleVersion, versionID, "checker@acme", approval.DecisionRequest{Remarks: "missing scope"})
	require.NoError(t, err)
	assert.Equal(t, approval.TicketRejected, rejected.Status)

	version, err := svc.Catalog.GetRuleVersion(ctx, versionID)
	require.NoError(t, err)
	assert.Equal(t, approval.StatusRejected, version.Status)

	// A rejected version can go back through the workflow.
	result, err := svc.Approval.Submit(ctx, approval.EntityRuleVersion, versionID, "maker@acme", approval.SubmitRequest{})
	require.NoError(t, err)
	assert.Equal(t, approval.TicketPending, result.Approval.Status)
	assert.NotEqual(t, rejected.ID, result.Approval.ID)
}

func TestApprovalWorkflow_ApprovedIsTerminal(t *testing.T) {
	infra := SetupTestInfra(t)
	svc := newGovernanceServices(infra.PostgresDB)

	ctx := context.Background()
	created, err := svc.Catalog.CreateRule(ctx, createRuleRequest("terminal_rule"), "maker@acme")
	require.NoError(t, err)
	versionID := created.RuleVersion.ID

	_, err = svc.Approval.Submit(ctx, approval.EntityRuleVersion, versionID, "maker@acme", approval.SubmitRequest{})
	require.NoError(t, err)
	_, err = svc.Approval.Approve(ctx, approval.EntityRuleVersion, versionID, "checker@acme", approval.DecisionRequest{})
	require.NoError(t, err)

	_, err = svc.Approval.Submit(ctx, approval.EntityRuleVersion, versionID, "maker@acme", approval.SubmitRequest{})
	assert.Error(t, err)
	assert.True(t, pkgerrors.IsConflict(err))
}

func TestApprovalWorkflow_IdempotentSubmitReplay(t *testing.T) {
	infra := SetupTestInfra(t)
	svc := newGovernanceServices(infra.PostgresDB)

	ctx := context.Background()
	created, err := svc.Catalog.CreateRule(ctx, createRuleRequest("idempotent_rule"), "maker@acme")
	require.NoError(t, err)
	versionID := created.RuleVersion.ID

	req := approval.SubmitRequest{IdempotencyKey: "submit-once"}

	first, err := svc.Approval.Submit(ctx, approval.EntityRuleVersion, versionID, "maker@acme", req)
	require.NoError(t, err)

	second, err := svc.Approval.Submit(ctx, approval.EntityRuleVersion, versionID, "maker@acme", req)
	require.NoError(t, err)
	assert.Equal(t, first.Approval.ID, second.Approval.ID)

	// Replays after the decision report the decided state without
	// reopening the workflow.
	_, err = svc.Approval.Approve(ctx, approval.EntityRuleVersion, versionID, "checker@acme", approval.DecisionRequest{})
	require.NoError(t, err)

	third, err := svc.Approval.Submit(ctx, approval.EntityRuleVersion, versionID, "maker@acme", req)
	require.NoError(t, err)
	assert.Equal(t, first.Approval.ID, third.Approval.ID)
	assert.Equal(t, approval.TicketApproved, third.Approval.Status)
	assert.Equal(t, approval.StatusApproved, third.EntityStatus)
}

func TestApprovalWorkflow_ConcurrentSubmitSingleWinner(t *testing.T) {
	infra := SetupTestInfra(t)
	svc := newGovernanceServices(infra.PostgresDB)

	ctx := context.Background()
	created, err := svc.Catalog.CreateRule(ctx, createRuleRequest("contended_rule"), "maker@acme")
	require.NoError(t, err)
	versionID := created.RuleVersion.ID

	const submitters = 8
	results := make([]error, submitters)

	var g errgroup.Group
	for i := 0; i < submitters; i++ {
		i := i
		g.Go(func() error {
			_, err := svc.Approval.Submit(ctx, approval.EntityRuleVersion, versionID, "maker@acme", approval.SubmitRequest{})
			results[i] = err
			return nil
		})
	}
	require.NoError(t, g.Wait())

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.True(t, pkgerrors.IsConflict(err), "unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)

	page, err := svc.Approval.ListApprovals(ctx, approval.Filter{
		EntityID: versionID,
		Status:   approval.TicketPending,
	}, pagination.Params{Limit: 10, Direction: pagination.DirectionNext})
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
}

func TestApprovalWorkflow_ConcurrentDecideSingleWinner(t *testing.T) {
	infra := SetupTestInfra(t)
	svc := newGovernanceServices(infra.PostgresDB)

	ctx := context.Background()
	created, err := svc.Catalog.CreateRule(ctx, createRuleRequest("contended_decision"), "maker@acme")
	require.NoError(t, err)
	versionID := created.RuleVersion.ID

	_, err = svc.Approval.Submit(ctx, approval.EntityRuleVersion, versionID, "maker@acme", approval.SubmitRequest{})
	require.NoError(t, err)

	const checkers = 4
	results := make([]error, checkers)

	var g errgroup.Group
	for i := 0; i < checkers; i++ {
		i := i
		g.Go(func() error {
			checker := uniqueName("checker", i)
			_, err := svc.Approval.Approve(ctx, approval.EntityRuleVersion, versionID, checker, approval.DecisionRequest{})
			results[i] = err
			return nil
		})
	}
	require.NoError(t, g.Wait())

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		}
	}
	assert.Equal(t, 1, succeeded)

	version, err := svc.Catalog.GetRuleVersion(ctx, versionID)
	require.NoError(t, err)
	assert.Equal(t, approval.StatusApproved, version.Status)
}

func TestApprovalWorkflow_RuleSetVersionLifecycle(t *testing.T) {
	infra := SetupTestInfra(t)
	svc := newGovernanceServices(infra.PostgresDB)

	ctx := context.Background()
	rule, err := svc.Catalog.CreateRule(ctx, createRuleRequest("set_member"), "maker@acme")
	require.NoError(t, err)

	created, err := svc.RuleSets.CreateRuleSet(ctx, rulesetCreateRequest("fraud_set", rule.Rule.ID), "maker@acme")
	require.NoError(t, err)
	versionID := created.RuleSetVersion.ID

	_, err = svc.Approval.Submit(ctx, approval.EntityRuleSetVersion, versionID, "maker@acme", approval.SubmitRequest{})
	require.NoError(t, err)

	decided, err := svc.Approval.Approve(ctx, approval.EntityRuleSetVersion, versionID, "checker@acme", approval.DecisionRequest{})
	require.NoError(t, err)
	assert.Equal(t, approval.TicketApproved, decided.Status)

	version, err := svc.RuleSets.GetRuleSetVersion(ctx, versionID)
	require.NoError(t, err)
	assert.Equal(t, approval.StatusApproved, version.Status)
}
