package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// converser is the subset of the Bedrock runtime client we use.
type converser interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// bedrockBackend calls the Bedrock Converse API.
type bedrockBackend struct {
	client  converser
	modelID string
}

func newBedrockBackend(ctx context.Context, region, modelID string) (*bedrockBackend, error) {
	if modelID == "" {
		return nil, errors.New("bedrock model ID required")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return &bedrockBackend{
		client:  bedrockruntime.NewFromConfig(awsCfg),
		modelID: modelID,
	}, nil
}

func (b *bedrockBackend) generate(ctx context.Context, systemPrompt, userPrompt string) (generation, error) {
	out, err := b.client.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId: aws.String(b.modelID),
		System: []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: systemPrompt},
		},
		Messages: []types.Message{{
			Role: types.ConversationRoleUser,
			Content: []types.ContentBlock{
				&types.ContentBlockMemberText{Value: userPrompt},
			},
		}},
	})
	if err != nil {
		return generation{}, fmt.Errorf("bedrock converse: %w", err)
	}

	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return generation{}, errors.New("bedrock returned no message")
	}

	var sb strings.Builder
	for _, block := range msg.Value.Content {
		if text, ok := block.(*types.ContentBlockMemberText); ok {
			sb.WriteString(text.Value)
		}
	}
	if sb.Len() == 0 {
		return generation{}, errors.New("bedrock returned empty content")
	}

	gen := generation{Text: sb.String()}
	if out.Usage != nil {
		gen.InputTokens = int64(aws.ToInt32(out.Usage.InputTokens))
		gen.OutputTokens = int64(aws.ToInt32(out.Usage.OutputTokens))
	}
	return gen, nil
}
