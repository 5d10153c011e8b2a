// Package options exposes the ask-user tool: the model presents a question
// with selectable answers, and the run pauses until the user picks one.
package options

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vantagelabs/relay/internal/tools"
	"github.com/vantagelabs/relay/pkg/models"
)

// Tool asks the user to choose between options.
type Tool struct{}

// New creates the ask-user tool.
func New() *Tool {
	return &Tool{}
}

func (t *Tool) Name() string { return "ask_user" }

func (t *Tool) Description() string {
	return "Ask the user a question with a fixed set of answer buttons. " +
		"The conversation pauses until the user selects one; use this when a " +
		"decision genuinely requires user input."
}

func (t *Tool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"question": {"type": "string"},
			"options": {
				"type": "array",
				"minItems": 2,
				"maxItems": 6,
				"items": {
					"type": "object",
					"properties": {
						"label": {"type": "string"},
						"value": {"type": "string"}
					},
					"required": ["label", "value"]
				}
			}
		},
		"required": ["question", "options"],
		"additionalProperties": false
	}`)
}

type askArgs struct {
	Question string                `json:"question"`
	Options  []models.OptionButton `json:"options"`
}

func (t *Tool) Execute(ctx context.Context, args json.RawMessage) (*tools.Result, error) {
	var in askArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return tools.Errorf(fmt.Sprintf("invalid arguments: %v", err)), nil
	}

	tools.Emit(ctx, models.StreamEvent{
		Type: models.EventOptions,
		Options: &models.OptionsPayload{
			Question: in.Question,
			Options:  in.Options,
		},
	})

	result := tools.Success("waiting for user selection", &tools.OptionsData{
		Question: in.Question,
		Options:  in.Options,
	})
	result.Halt = true
	return result, nil
}
