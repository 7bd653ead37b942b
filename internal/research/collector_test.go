package research

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/harukawa/deepresearch/internal/conversation"
	"github.com/harukawa/deepresearch/internal/llm"
	"github.com/harukawa/deepresearch/internal/tools"
)

// scriptedCaller replays canned responses and records every request.
type scriptedCaller struct {
	responses []*llm.Response
	requests  []*llm.Request
	err       error
}

func (s *scriptedCaller) Converse(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	if len(s.requests) > len(s.responses) {
		return nil, fmt.Errorf("no scripted response for call %d", len(s.requests))
	}
	return s.responses[len(s.requests)-1], nil
}

func textResponse(text string) *llm.Response {
	resp := &llm.Response{StopReason: "end_turn"}
	resp.Output.Message = llm.AssistantText(text)
	return resp
}

func toolUseResponse(id, name string, input map[string]any) *llm.Response {
	resp := &llm.Response{StopReason: "tool_use"}
	resp.Output.Message = llm.Message{
		Role: llm.RoleAssistant,
		Content: []llm.ContentBlock{
			{ToolUse: &llm.ToolUse{ToolUseID: id, Name: name, Input: input}},
		},
	}
	return resp
}

func newTestStore(t *testing.T) *conversation.Store {
	t.Helper()
	store, err := conversation.New(t.TempDir(), zaptest.NewLogger(t))
	require.NoError(t, err)
	return store
}

func newTestDispatcher(t *testing.T, searchHandler func(ctx context.Context, input map[string]any) (string, error)) *tools.Dispatcher {
	t.Helper()
	d := tools.NewDispatcher(tools.Specs([]string{tools.ToolSearch}), zaptest.NewLogger(t))
	d.Register(tools.ToolSearch, searchHandler)
	require.NoError(t, d.Validate())
	return d
}

func TestCollectFinishesOnFinishTool(t *testing.T) {
	caller := &scriptedCaller{responses: []*llm.Response{
		toolUseResponse("tu-1", tools.ToolSearch, map[string]any{"query": "first"}),
		toolUseResponse("tu-2", tools.ToolSearch, map[string]any{"query": "second"}),
		toolUseResponse("tu-3", tools.FinishTool, map[string]any{}),
	}}
	dispatcher := newTestDispatcher(t, func(ctx context.Context, input map[string]any) (string, error) {
		return fmt.Sprintf("results for %v", input["query"]), nil
	})
	store := newTestStore(t)
	store.Append(conversation.ChannelCollection, llm.UserText("investigate"))

	c := NewCollector(caller, dispatcher, store, zaptest.NewLogger(t))
	result, err := c.Collect(context.Background(), CollectParams{
		Channel:       conversation.ChannelCollection,
		ModelID:       "m",
		System:        "sys",
		MaxIterations: 10,
		Mode:          "standard",
	})
	require.NoError(t, err)

	assert.Equal(t, CollectionFinished, result.Status)
	assert.Equal(t, 3, result.Iterations)
	assert.Equal(t, []string{"results for first", "results for second"}, result.Data)
	assert.Equal(t, 2, result.ToolsUsed[tools.ToolSearch])

	// Finish gets a synthetic acknowledgment so the history stays valid.
	msgs := store.Messages(conversation.ChannelCollection)
	last := msgs[len(msgs)-1]
	require.Len(t, last.Content, 1)
	require.NotNil(t, last.Content[0].ToolResult)
	assert.Equal(t, "tu-3", last.Content[0].ToolResult.ToolUseID)
}

func TestCollectFinishesWhenModelStopsUsingTools(t *testing.T) {
	caller := &scriptedCaller{responses: []*llm.Response{
		textResponse("I already know enough about this."),
	}}
	dispatcher := newTestDispatcher(t, func(ctx context.Context, input map[string]any) (string, error) {
		t.Fatal("no tool should run")
		return "", nil
	})
	store := newTestStore(t)
	store.Append(conversation.ChannelCollection, llm.UserText("investigate"))

	c := NewCollector(caller, dispatcher, store, zaptest.NewLogger(t))
	result, err := c.Collect(context.Background(), CollectParams{
		Channel: conversation.ChannelCollection, ModelID: "m", MaxIterations: 5, Mode: "standard",
	})
	require.NoError(t, err)
	assert.Equal(t, CollectionFinished, result.Status)
	assert.Equal(t, []string{"I already know enough about this."}, result.Data)
}

func TestCollectExhaustionKeepsPartialData(t *testing.T) {
	caller := &scriptedCaller{responses: []*llm.Response{
		toolUseResponse("tu-1", tools.ToolSearch, map[string]any{"query": "a"}),
		toolUseResponse("tu-2", tools.ToolSearch, map[string]any{"query": "b"}),
		toolUseResponse("tu-3", tools.ToolSearch, map[string]any{"query": "c"}),
	}}
	dispatcher := newTestDispatcher(t, func(ctx context.Context, input map[string]any) (string, error) {
		return "data", nil
	})
	store := newTestStore(t)
	store.Append(conversation.ChannelCollection, llm.UserText("investigate"))

	c := NewCollector(caller, dispatcher, store, zaptest.NewLogger(t))
	result, err := c.Collect(context.Background(), CollectParams{
		Channel: conversation.ChannelCollection, ModelID: "m", MaxIterations: 3, Mode: "standard",
	})
	require.NoError(t, err, "hitting the ceiling is not an error")
	assert.Equal(t, CollectionExhausted, result.Status)
	assert.Equal(t, 3, result.Iterations)
	assert.Len(t, result.Data, 3)
}

func TestCollectFeedsToolErrorsBack(t *testing.T) {
	caller := &scriptedCaller{responses: []*llm.Response{
		toolUseResponse("tu-1", tools.ToolSearch, map[string]any{"query": "flaky"}),
		toolUseResponse("tu-2", tools.FinishTool, map[string]any{}),
	}}
	dispatcher := newTestDispatcher(t, func(ctx context.Context, input map[string]any) (string, error) {
		return "", fmt.Errorf("search backend down")
	})
	store := newTestStore(t)
	store.Append(conversation.ChannelCollection, llm.UserText("investigate"))

	c := NewCollector(caller, dispatcher, store, zaptest.NewLogger(t))
	result, err := c.Collect(context.Background(), CollectParams{
		Channel: conversation.ChannelCollection, ModelID: "m", MaxIterations: 5, Mode: "standard",
	})
	require.NoError(t, err, "tool failures must not abort the loop")
	assert.Equal(t, CollectionFinished, result.Status)
	assert.Empty(t, result.Data, "failed tool output is not collected")

	// The error result is in the history with error status.
	var found bool
	for _, msg := range store.Messages(conversation.ChannelCollection) {
		for _, block := range msg.Content {
			if block.ToolResult != nil && block.ToolResult.ToolUseID == "tu-1" {
				found = true
				assert.Equal(t, llm.StatusError, block.ToolResult.Status)
				assert.True(t, strings.HasPrefix(block.ToolResult.Content[0].Text, tools.ErrorSentinel))
			}
		}
	}
	assert.True(t, found)
}

func TestCollectModelFailureAborts(t *testing.T) {
	caller := &scriptedCaller{err: fmt.Errorf("inference endpoint unreachable")}
	dispatcher := newTestDispatcher(t, func(ctx context.Context, input map[string]any) (string, error) {
		return "", nil
	})
	store := newTestStore(t)
	store.Append(conversation.ChannelCollection, llm.UserText("investigate"))

	c := NewCollector(caller, dispatcher, store, zaptest.NewLogger(t))
	_, err := c.Collect(context.Background(), CollectParams{
		Channel: conversation.ChannelCollection, ModelID: "m", MaxIterations: 5, Mode: "standard",
	})
	var dcErr *DataCollectionError
	require.ErrorAs(t, err, &dcErr)
	assert.Equal(t, conversation.ChannelCollection, dcErr.Channel)
}

func TestCollectNudgesMustUseTool(t *testing.T) {
	caller := &scriptedCaller{responses: []*llm.Response{
		toolUseResponse("tu-1", tools.ToolSearch, map[string]any{"query": "a"}),
		toolUseResponse("tu-2", tools.ToolSearch, map[string]any{"query": "b"}),
		toolUseResponse("tu-3", tools.ToolSearch, map[string]any{"query": "c"}),
	}}
	dispatcher := newTestDispatcher(t, func(ctx context.Context, input map[string]any) (string, error) {
		return "data", nil
	})
	store := newTestStore(t)
	store.Append(conversation.ChannelCollection, llm.UserText("investigate"))

	c := NewCollector(caller, dispatcher, store, zaptest.NewLogger(t))
	_, err := c.Collect(context.Background(), CollectParams{
		Channel:       conversation.ChannelCollection,
		ModelID:       "m",
		MaxIterations: 3,
		MustUseTool:   "image_search",
		Mode:          "standard",
	})
	require.NoError(t, err)

	var nudged bool
	for _, msg := range store.Messages(conversation.ChannelCollection) {
		for _, block := range msg.Content {
			if msg.Role == llm.RoleUser && strings.Contains(block.Text, "image_search") {
				nudged = true
			}
		}
	}
	assert.True(t, nudged, "penultimate iteration must remind the model about the required tool")
}
