package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockClient_AlwaysToolCall(t *testing.T) {
	m := NewMockClient()
	m.AlwaysToolCall = true
	m.ForcedTool = "list_tables"
	m.ForcedArgs = "{}"

	for i := 0; i < 8; i++ {
		out, err := m.Generate(context.Background(), GenerateInput{Messages: []Message{{Role: RoleUser, Content: "go"}}})
		require.NoError(t, err)
		require.Len(t, out.ToolCalls, 1)
		assert.Equal(t, "list_tables", out.ToolCalls[0].Name)
	}
	assert.Equal(t, 8, m.calls)
}

func TestMockClient_ScriptedResponse(t *testing.T) {
	m := NewMockClient()
	m.Script["user:top 5 customers"] = GenerateOutput{Content: "SELECT 1"}

	out, err := m.Generate(context.Background(), GenerateInput{Messages: []Message{{Role: RoleUser, Content: "top 5 customers"}}})
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", out.Content)
}

func TestMockClient_EmbedDeterministic(t *testing.T) {
	m := NewMockClient()
	out1, err := m.Embed(context.Background(), EmbedInput{Texts: []string{"revenue is sum of price"}})
	require.NoError(t, err)
	out2, err := m.Embed(context.Background(), EmbedInput{Texts: []string{"revenue is sum of price"}})
	require.NoError(t, err)
	assert.Equal(t, out1, out2, "identical text must embed identically")
}
