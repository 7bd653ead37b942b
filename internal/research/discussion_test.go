package research

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/harukawa/deepresearch/internal/conversation"
	"github.com/harukawa/deepresearch/internal/llm"
)

func TestDiscussionTurnAccounting(t *testing.T) {
	// 3 turns cost 6 exchange calls, then one summary call.
	responses := make([]*llm.Response, 0, 7)
	for i := 1; i <= 6; i++ {
		responses = append(responses, textResponse(fmt.Sprintf("utterance %d", i)))
	}
	responses = append(responses, textResponse("the final strategy"))
	caller := &scriptedCaller{responses: responses}

	store := newTestStore(t)
	store.Append(conversation.ChannelProposer, llm.UserText("Research topic: solid state batteries"))

	d := NewDiscussion(caller, store, zaptest.NewLogger(t))
	strategy, err := d.Run(context.Background(), DiscussionParams{
		ProposerModel: "model-a",
		CriticModel:   "model-b",
		Turns:         3,
	})
	require.NoError(t, err)
	assert.Equal(t, "the final strategy", strategy)
	require.Len(t, caller.requests, 7)

	// Proposer speaks first, sides alternate, summary goes to the proposer
	// model at temperature zero.
	assert.Equal(t, "model-a", caller.requests[0].ModelID)
	assert.Equal(t, "model-b", caller.requests[1].ModelID)
	assert.Equal(t, "model-a", caller.requests[6].ModelID)
	require.NotNil(t, caller.requests[6].InferenceConfig.Temperature)
	assert.Zero(t, *caller.requests[6].InferenceConfig.Temperature)
	require.NotNil(t, caller.requests[0].InferenceConfig.Temperature)
	assert.Equal(t, 1.0, *caller.requests[0].InferenceConfig.Temperature)
}

func TestDiscussionCrossAppendsHistories(t *testing.T) {
	caller := &scriptedCaller{responses: []*llm.Response{
		textResponse("proposal"),
		textResponse("critique"),
		textResponse("strategy"),
	}}
	store := newTestStore(t)
	store.Append(conversation.ChannelProposer, llm.UserText("topic"))

	d := NewDiscussion(caller, store, zaptest.NewLogger(t))
	_, err := d.Run(context.Background(), DiscussionParams{
		ProposerModel: "a", CriticModel: "b", Turns: 1,
	})
	require.NoError(t, err)

	// The proposer's output lands in its own channel as assistant and in
	// the critic's as user, and vice versa.
	proposer := store.Messages(conversation.ChannelProposer)
	critic := store.Messages(conversation.ChannelCritic)

	require.GreaterOrEqual(t, len(proposer), 3)
	assert.Equal(t, llm.RoleUser, proposer[0].Role)
	assert.Equal(t, llm.RoleAssistant, proposer[1].Role)
	assert.Equal(t, "proposal", proposer[1].Content[0].Text)
	assert.Equal(t, llm.RoleUser, proposer[2].Role)
	assert.Equal(t, "critique", proposer[2].Content[0].Text)

	require.Len(t, critic, 2)
	assert.Equal(t, llm.RoleUser, critic[0].Role)
	assert.Equal(t, "proposal", critic[0].Content[0].Text)
	assert.Equal(t, llm.RoleAssistant, critic[1].Role)
	assert.Equal(t, "critique", critic[1].Content[0].Text)

	// The critic never sees the summary request.
	for _, msg := range critic {
		for _, block := range msg.Content {
			assert.NotContains(t, block.Text, "Summarize")
		}
	}
}
