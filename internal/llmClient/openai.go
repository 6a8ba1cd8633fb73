package llmclient

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
)

// OpenAIClient calls the Responses API with a strict json_schema format.
type OpenAIClient struct {
	cli   *openai.Client
	model string
}

func NewOpenAIClient(apiKey, model string) (*OpenAIClient, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, NewPermanentError(errors.New("openai: api key is required"))
	}
	if strings.TrimSpace(model) == "" {
		model = DefaultOpenAIModel
	}
	cli := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIClient{cli: &cli, model: model}, nil
}

func (o *OpenAIClient) Name() string { return "OpenAI:" + o.model }
func (o *OpenAIClient) Close() error { return nil }

func (o *OpenAIClient) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	params := responses.ResponseNewParams{
		Model: o.model,
		Input: responses.ResponseNewParamsInputUnion{
			OfString: openai.String(composePrompt(prompt, input)),
		},
	}
	if spec, ok := ResponseSpecFrom(ctx); ok {
		if len(spec.Schema) > 0 {
			name := spec.Name
			if name == "" {
				name = "response"
			}
			params.Text = responses.ResponseTextConfigParam{
				Format: responses.ResponseFormatTextConfigUnionParam{
					OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
						Name:   name,
						Schema: strictSchema(spec.Schema),
						Strict: openai.Bool(true),
						Type:   "json_schema",
					},
				},
			}
		}
		if spec.Temperature != nil {
			params.Temperature = openai.Float(float64(*spec.Temperature))
		}
	}

	resp, err := o.cli.Responses.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 && apiErr.StatusCode != 429 {
			return nil, NewPermanentError(err)
		}
		return nil, err
	}
	txt := strings.TrimSpace(resp.OutputText())
	if txt == "" {
		return nil, ErrInvalidJSON
	}
	return json.RawMessage(txt), nil
}
