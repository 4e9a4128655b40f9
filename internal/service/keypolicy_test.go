package service

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildKeyPolicy(t *testing.T) {
	policyJSON, err := buildKeyPolicy(testRootARN, testOperatorARN, testRoleARN)
	require.NoError(t, err)

	var policy keyPolicy
	require.NoError(t, json.Unmarshal([]byte(policyJSON), &policy))
	assert.Equal(t, "2012-10-17", policy.Version)
	require.Len(t, policy.Statement, 3)

	bySid := make(map[string]policyStatement, len(policy.Statement))
	for _, stmt := range policy.Statement {
		bySid[stmt.Sid] = stmt
	}

	assert.Equal(t, testRootARN, bySid[sidRootAccess].Principal.AWS)
	assert.Equal(t, []string{"kms:*"}, bySid[sidRootAccess].Action)
	assert.Equal(t, testOperatorARN, bySid[sidOperatorAccess].Principal.AWS)
	assert.Equal(t, testRoleARN, bySid[sidConsumerDecrypt].Principal.AWS)
	assert.Equal(t, []string{"kms:Decrypt"}, bySid[sidConsumerDecrypt].Action)
}

func TestValidateKeyPolicy(t *testing.T) {
	good, err := buildKeyPolicy(testRootARN, testOperatorARN, testRoleARN)
	require.NoError(t, err)

	t.Run("accepts its own output", func(t *testing.T) {
		assert.True(t, validateKeyPolicy(good, testRoleARN))
	})

	t.Run("rejects a different consumer", func(t *testing.T) {
		assert.False(t, validateKeyPolicy(good, "arn:aws:iam::111111111111:role/other"))
	})

	t.Run("rejects an opaque principal id left by role recreation", func(t *testing.T) {
		rewritten, err := buildKeyPolicy(testRootARN, testOperatorARN, "AROAEXAMPLEOPAQUEID")
		require.NoError(t, err)
		assert.False(t, validateKeyPolicy(rewritten, testRoleARN))
	})

	t.Run("rejects malformed json", func(t *testing.T) {
		assert.False(t, validateKeyPolicy("{not-json", testRoleARN))
	})

	t.Run("rejects a policy missing the consumer statement", func(t *testing.T) {
		assert.False(t, validateKeyPolicy(`{"Version":"2012-10-17","Statement":[]}`, testRoleARN))
	})
}

func TestPolicyAllowsOperatorDeletion(t *testing.T) {
	good, err := buildKeyPolicy(testRootARN, testOperatorARN, testRoleARN)
	require.NoError(t, err)

	assert.True(t, policyAllowsOperatorDeletion(good, testOperatorARN))
	assert.False(t, policyAllowsOperatorDeletion(good, "arn:aws:iam::999999999999:role/not-us"))
	assert.False(t, policyAllowsOperatorDeletion("{not-json", testOperatorARN))
}
