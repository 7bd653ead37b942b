package research

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/harukawa/deepresearch/internal/conversation"
	"github.com/harukawa/deepresearch/internal/llm"
)

// DiscussionParams configures one proposer/critic exchange.
type DiscussionParams struct {
	ProposerModel string
	CriticModel   string
	Turns         int
}

// Discussion runs two models against each other to shape the research
// strategy. Each side keeps its own history: a participant's output is
// appended to its own channel as an assistant message and to the other's
// as a user message, so both see a normal alternating conversation. The
// proposer always speaks first.
type Discussion struct {
	caller ModelCaller
	store  *conversation.Store
	logger *zap.Logger
}

func NewDiscussion(caller ModelCaller, store *conversation.Store, logger *zap.Logger) *Discussion {
	return &Discussion{caller: caller, store: store, logger: logger}
}

// Run executes the exchange and distills the proposer's history into a
// research strategy with a zero-temperature summary call. The proposer
// channel must already hold the opening user message. Turns discussion
// turns cost exactly 2*Turns inference calls plus one for the summary.
func (d *Discussion) Run(ctx context.Context, p DiscussionParams) (string, error) {
	for turn := 0; turn < p.Turns; turn++ {
		proposal, err := d.speak(ctx, p.ProposerModel, conversation.ChannelProposer, proposerSystemPrompt)
		if err != nil {
			return "", &StageError{Stage: "discussion", Err: fmt.Errorf("proposer turn %d: %w", turn+1, err)}
		}
		d.store.Append(conversation.ChannelProposer, llm.AssistantText(proposal))
		d.store.Append(conversation.ChannelCritic, llm.UserText(proposal))

		critique, err := d.speak(ctx, p.CriticModel, conversation.ChannelCritic, criticSystemPrompt)
		if err != nil {
			return "", &StageError{Stage: "discussion", Err: fmt.Errorf("critic turn %d: %w", turn+1, err)}
		}
		d.store.Append(conversation.ChannelCritic, llm.AssistantText(critique))
		d.store.Append(conversation.ChannelProposer, llm.UserText(critique))

		d.logger.Debug("Discussion turn completed", zap.Int("turn", turn+1))
	}

	d.store.Append(conversation.ChannelProposer, llm.UserText(strategySummaryPrompt))
	req := &llm.Request{
		ModelID:         p.ProposerModel,
		Messages:        d.store.Messages(conversation.ChannelProposer),
		System:          []llm.SystemBlock{{Text: proposerSystemPrompt}},
		InferenceConfig: llm.Temp(0),
	}
	resp, err := d.caller.Converse(ctx, req)
	if err != nil {
		return "", &StageError{Stage: "discussion", Err: fmt.Errorf("strategy summary: %w", err)}
	}
	strategy := strings.TrimSpace(resp.Text())
	d.store.Append(conversation.ChannelProposer, llm.AssistantText(strategy))

	d.logger.Info("Research strategy settled",
		zap.Int("turns", p.Turns),
		zap.Int("strategy_chars", len(strategy)),
	)
	return strategy, nil
}

func (d *Discussion) speak(ctx context.Context, modelID, channel, system string) (string, error) {
	req := &llm.Request{
		ModelID:         modelID,
		Messages:        d.store.Messages(channel),
		System:          []llm.SystemBlock{{Text: system}},
		InferenceConfig: llm.Temp(1),
	}
	resp, err := d.caller.Converse(ctx, req)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text()), nil
}
