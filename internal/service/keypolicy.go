package service

import (
	"encoding/json"
	"fmt"
)

// Sids for the three statements every provisioned key policy carries.
const (
	sidRootAccess      = "Root User Has All Actions"
	sidOperatorAccess  = "Operator Role Has All Actions"
	sidConsumerDecrypt = "Consumer IAM Role Has Decrypt Only"
)

// keyPolicy is the policy document attached to every key the lifecycle
// manager provisions. Statements are generated, never hand-edited, so the
// principal fields are always single strings.
type keyPolicy struct {
	Version   string            `json:"Version"`
	Statement []policyStatement `json:"Statement"`
}

type policyStatement struct {
	Sid       string          `json:"Sid"`
	Effect    string          `json:"Effect"`
	Principal policyPrincipal `json:"Principal"`
	Action    []string        `json:"Action"`
	Resource  string          `json:"Resource"`
}

type policyPrincipal struct {
	AWS string `json:"AWS"`
}

// buildKeyPolicy renders the standard policy for a provisioned key: the
// account root and the service's own operating role hold full access, the
// authenticating principal holds decrypt only.
func buildKeyPolicy(rootARN, operatorRoleARN, consumerARN string) (string, error) {
	policy := keyPolicy{
		Version: "2012-10-17",
		Statement: []policyStatement{
			{
				Sid:       sidRootAccess,
				Effect:    "Allow",
				Principal: policyPrincipal{AWS: rootARN},
				Action:    []string{"kms:*"},
				Resource:  "*",
			},
			{
				Sid:       sidOperatorAccess,
				Effect:    "Allow",
				Principal: policyPrincipal{AWS: operatorRoleARN},
				Action:    []string{"kms:*"},
				Resource:  "*",
			},
			{
				Sid:       sidConsumerDecrypt,
				Effect:    "Allow",
				Principal: policyPrincipal{AWS: consumerARN},
				Action:    []string{"kms:Decrypt"},
				Resource:  "*",
			},
		},
	}

	raw, err := json.Marshal(policy)
	if err != nil {
		return "", fmt.Errorf("marshal key policy: %w", err)
	}
	return string(raw), nil
}

// validateKeyPolicy checks the live policy document still has the expected
// statement shape for the consumer principal. When an external account
// deletes and recreates its role, the cloud silently rewrites the policy's
// ARN principal into an opaque principal id; the ARN comparison below
// catches exactly that, and the caller regenerates the policy.
func validateKeyPolicy(policyJSON, consumerARN string) bool {
	var policy keyPolicy
	if err := json.Unmarshal([]byte(policyJSON), &policy); err != nil {
		return false
	}

	for _, stmt := range policy.Statement {
		if stmt.Sid != sidConsumerDecrypt {
			continue
		}
		if stmt.Effect != "Allow" || stmt.Principal.AWS != consumerARN {
			return false
		}
		return len(stmt.Action) == 1 && stmt.Action[0] == "kms:Decrypt"
	}
	return false
}

// policyAllowsOperatorDeletion checks the policy still grants the operator
// role the access the cleanup job needs before it schedules deletion. Keys
// this service did not provision (or whose policy was altered) are left
// alone.
func policyAllowsOperatorDeletion(policyJSON, operatorRoleARN string) bool {
	var policy keyPolicy
	if err := json.Unmarshal([]byte(policyJSON), &policy); err != nil {
		return false
	}
	for _, stmt := range policy.Statement {
		if stmt.Sid == sidOperatorAccess && stmt.Effect == "Allow" && stmt.Principal.AWS == operatorRoleARN {
			return true
		}
	}
	return false
}
