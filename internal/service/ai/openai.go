package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"
)

// OpenAIChatModel adapts the OpenAI chat completions API to eino's
// BaseChatModel so it can sit in the same chain as the Ark model.
type OpenAIChatModel struct {
	client      oai.Client
	model       string
	temperature *float32
	topP        *float32
	maxTokens   *int
}

// OpenAIConfig configures OpenAIChatModel.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature *float32
	TopP        *float32
	MaxTokens   *int
	Timeout     time.Duration
	MaxRetries  *int
}

// NewOpenAIChatModel builds the adapter. APIKey and Model are required.
func NewOpenAIChatModel(cfg OpenAIConfig) (*OpenAIChatModel, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: api key must not be empty")
	}
	if cfg.Model == "" {
		return nil, errors.New("openai: model must not be empty")
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	}
	if cfg.MaxRetries != nil {
		reqOpts = append(reqOpts, option.WithMaxRetries(*cfg.MaxRetries))
	}

	return &OpenAIChatModel{
		client:      oai.NewClient(reqOpts...),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		topP:        cfg.TopP,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

// Generate implements model.BaseChatModel.
func (m *OpenAIChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	params, err := m.buildParams(input, opts...)
	if err != nil {
		return nil, err
	}

	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai: empty choices in response")
	}

	choice := resp.Choices[0]
	out := schema.AssistantMessage(choice.Message.Content, nil)
	out.ResponseMeta = &schema.ResponseMeta{
		FinishReason: choice.FinishReason,
		Usage: &schema.TokenUsage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}
	return out, nil
}

// Stream implements model.BaseChatModel. Every chunk carries the content delta;
// the chunk that closes the choice also carries the finish reason. A transport
// error is delivered as the last Recv error.
func (m *OpenAIChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	params, err := m.buildParams(input, opts...)
	if err != nil {
		return nil, err
	}

	stream := m.client.Chat.Completions.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("openai: start stream: %w", err)
	}

	sr, sw := schema.Pipe[*schema.Message](16)
	go func() {
		defer sw.Close()
		defer stream.Close()

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			choice := chunk.Choices[0]

			msg := &schema.Message{Role: schema.Assistant, Content: choice.Delta.Content}
			if choice.FinishReason != "" {
				msg.ResponseMeta = &schema.ResponseMeta{FinishReason: choice.FinishReason}
			}
			if closed := sw.Send(msg, nil); closed {
				return
			}
		}

		if err := stream.Err(); err != nil && !errors.Is(err, io.EOF) {
			sw.Send(nil, fmt.Errorf("openai: stream: %w", err))
		}
	}()

	return sr, nil
}

func (m *OpenAIChatModel) buildParams(input []*schema.Message, opts ...model.Option) (oai.ChatCompletionNewParams, error) {
	common := model.GetCommonOptions(&model.Options{
		Temperature: m.temperature,
		TopP:        m.topP,
		MaxTokens:   m.maxTokens,
		Model:       &m.model,
	}, opts...)

	messages := make([]oai.ChatCompletionMessageParamUnion, 0, len(input))
	for _, msg := range input {
		converted, err := convertMessage(msg)
		if err != nil {
			return oai.ChatCompletionNewParams{}, err
		}
		messages = append(messages, converted)
	}

	modelName := m.model
	if common.Model != nil && *common.Model != "" {
		modelName = *common.Model
	}

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(modelName),
		Messages: messages,
	}
	if common.Temperature != nil {
		params.Temperature = param.NewOpt(float64(*common.Temperature))
	}
	if common.TopP != nil {
		params.TopP = param.NewOpt(float64(*common.TopP))
	}
	if common.MaxTokens != nil && *common.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(*common.MaxTokens))
	}

	return params, nil
}

func convertMessage(msg *schema.Message) (oai.ChatCompletionMessageParamUnion, error) {
	switch msg.Role {
	case schema.System:
		return oai.SystemMessage(msg.Content), nil
	case schema.User:
		return oai.UserMessage(msg.Content), nil
	case schema.Assistant:
		asst := oai.ChatCompletionAssistantMessageParam{}
		asst.Content.OfString = oai.String(msg.Content)
		return oai.ChatCompletionMessageParamUnion{OfAssistant: &asst}, nil
	default:
		return oai.ChatCompletionMessageParamUnion{}, fmt.Errorf("openai: unsupported message role %q", msg.Role)
	}
}
