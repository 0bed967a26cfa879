package dynamo

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildUpdateExpr_SingleField(t *testing.T) {
	ue, err := buildUpdateExpr(map[string]interface{}{"ticket_id": "T-100"})
	require.NoError(t, err)
	assert.Equal(t, "SET #f0 = :v0", ue.Expr)
	assert.Equal(t, map[string]string{"#f0": "ticket_id"}, ue.Names)
	_, ok := ue.Values[":v0"]
	assert.True(t, ok)
}

func TestBuildUpdateExpr_SortedPlaceholders(t *testing.T) {
	updates := map[string]interface{}{
		"updated_at": "2026-01-01T00:00:00Z",
		"ticket_id":  "T-100",
	}
	ue1, err := buildUpdateExpr(updates)
	require.NoError(t, err)
	ue2, err := buildUpdateExpr(updates)
	require.NoError(t, err)

	assert.Equal(t, ue1.Expr, ue2.Expr)
	assert.Equal(t, "ticket_id", ue1.Names["#f0"])
	assert.Equal(t, "updated_at", ue1.Names["#f1"])
	assert.Equal(t, "SET #f0 = :v0, #f1 = :v1", ue1.Expr)
}

func TestBuildUpdateExpr_ValuesMarshalled(t *testing.T) {
	ue, err := buildUpdateExpr(map[string]interface{}{"ticket_id": "T-7"})
	require.NoError(t, err)
	s, ok := ue.Values[":v0"].(*types.AttributeValueMemberS)
	require.True(t, ok)
	assert.Equal(t, "T-7", s.Value)
}

func TestBuildUpdateExpr_EmptyMap(t *testing.T) {
	_, err := buildUpdateExpr(map[string]interface{}{})
	assert.ErrorContains(t, err, "no fields to update")
}

func TestCompositeKey(t *testing.T) {
	k := compositeKey("client_id", "host-1", "anchor_key", "active_chat_ticket")
	require.Len(t, k, 2)
	assert.Equal(t, "host-1", k["client_id"].(*types.AttributeValueMemberS).Value)
	assert.Equal(t, "active_chat_ticket", k["anchor_key"].(*types.AttributeValueMemberS).Value)
}
