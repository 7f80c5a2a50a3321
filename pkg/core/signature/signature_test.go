package signature

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryService_CreateAndVerify(t *testing.T) {
	svc := NewMemoryService()
	ctx := context.Background()

	sig, err := svc.CreateSignature(ctx, CreateRequest{
		UserID:           "qa-manager",
		Password:         "secret",
		SignatureType:    "APPROVAL",
		SignedEntityType: SignedEntityTypeWorkflowAssignment,
		SignedEntityID:   "asg-001",
		SignatureReason:  "final release approval",
		SignedDocument:   map[string]any{"assignmentId": "asg-001", "action": "APPROVED"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, sig.ID)
	assert.NotEmpty(t, sig.SignatureHash)
	assert.False(t, sig.Timestamp.IsZero())

	result, err := svc.VerifySignature(ctx, VerifyRequest{
		SignatureID:      sig.ID,
		UserID:           "qa-manager",
		SignedEntityType: SignedEntityTypeWorkflowAssignment,
		SignedEntityID:   "asg-001",
	})
	require.NoError(t, err)
	assert.True(t, result.IsValid)
	require.NotNil(t, result.Signature)
	assert.Equal(t, sig.SignatureHash, result.Signature.SignatureHash)
}

func TestMemoryService_VerifyMismatch(t *testing.T) {
	svc := NewMemoryService()
	ctx := context.Background()

	sig, err := svc.CreateSignature(ctx, CreateRequest{
		UserID:           "qa-manager",
		SignedEntityType: SignedEntityTypeWorkflowAssignment,
		SignedEntityID:   "asg-001",
		SignedDocument:   map[string]any{"action": "APPROVED"},
	})
	require.NoError(t, err)

	// 签名人不匹配
	result, err := svc.VerifySignature(ctx, VerifyRequest{
		SignatureID:      sig.ID,
		UserID:           "intruder",
		SignedEntityType: SignedEntityTypeWorkflowAssignment,
		SignedEntityID:   "asg-001",
	})
	require.NoError(t, err)
	assert.False(t, result.IsValid)

	// 实体不匹配
	result, err = svc.VerifySignature(ctx, VerifyRequest{
		SignatureID:      sig.ID,
		UserID:           "qa-manager",
		SignedEntityType: SignedEntityTypeWorkflowAssignment,
		SignedEntityID:   "asg-other",
	})
	require.NoError(t, err)
	assert.False(t, result.IsValid)

	// 不存在的签名
	result, err = svc.VerifySignature(ctx, VerifyRequest{SignatureID: "no-such"})
	require.NoError(t, err)
	assert.False(t, result.IsValid)
	assert.Nil(t, result.Signature)
}

func TestMemoryService_CreateRequiresUser(t *testing.T) {
	svc := NewMemoryService()
	_, err := svc.CreateSignature(context.Background(), CreateRequest{
		SignedEntityID: "asg-001",
	})
	assert.Error(t, err)
}

func TestMemoryService_HashBindsUserAndEntity(t *testing.T) {
	svc := NewMemoryService()
	ctx := context.Background()
	doc := map[string]any{"action": "APPROVED"}

	sig1, err := svc.CreateSignature(ctx, CreateRequest{UserID: "u1", SignedEntityID: "asg-1", SignedDocument: doc})
	require.NoError(t, err)
	sig2, err := svc.CreateSignature(ctx, CreateRequest{UserID: "u2", SignedEntityID: "asg-1", SignedDocument: doc})
	require.NoError(t, err)

	assert.NotEqual(t, sig1.SignatureHash, sig2.SignatureHash)
}
