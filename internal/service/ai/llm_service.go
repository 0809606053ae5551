package ai

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/zhouzirui/locus/backend/internal/model/chat"
	"github.com/zhouzirui/locus/backend/internal/model/scene"
	"github.com/zhouzirui/locus/backend/internal/model/session"
)

// Service runs the system prompt and conversation history through the chat model.
type Service struct {
	prompts *PromptBuilder
	chain   compose.Runnable[map[string]any, *schema.Message]
}

// NewService compiles the prompt chain around chatModel.
func NewService(ctx context.Context, chatModel model.BaseChatModel) (*Service, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is required")
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{
		prompts: NewPromptBuilder(),
		chain:   runnable,
	}, nil
}

// SystemPrompt renders the persona prompt for a scene and a settings snapshot.
func (s *Service) SystemPrompt(sc scene.Scene, cfg session.Config) string {
	return s.prompts.BuildSystemPrompt(sc, cfg)
}

// StreamReply streams the assistant reply to the full history.
func (s *Service) StreamReply(ctx context.Context, system string, history []chat.Message) (*schema.StreamReader[*schema.Message], error) {
	stream, err := s.chain.Stream(ctx, buildChainInput(system, history))
	if err != nil {
		return nil, fmt.Errorf("failed to stream AI chain output: %w", err)
	}
	return stream, nil
}

func buildChainInput(system string, history []chat.Message) map[string]any {
	return map[string]any{
		"system":  system,
		"history": buildHistoryMessages(history),
	}
}

func buildHistoryMessages(messages []chat.Message) []*schema.Message {
	history := make([]*schema.Message, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role() {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(msg.Content))
		default:
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		}
	}
	return history
}
