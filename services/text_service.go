package services

import (
	"github.com/stardustagi/gptshell/llm/cost"
	"github.com/stardustagi/gptshell/llm/models"
	"github.com/stardustagi/gptshell/llm/prompt"
)

// TextParams 文本/对话补全参数
type TextParams struct {
	Prompt           string   `json:"prompt" validate:"required,max=4096"`
	Mode             string   `json:"mode"`
	ContextFile      string   `json:"context_file"`
	Suffix           string   `json:"suffix"`
	MaxTokens        int      `json:"max_tokens" validate:"min=1,max=4096"`
	Temperature      float32  `json:"temperature" validate:"min=0,max=2"`
	TopP             float32  `json:"top_p" validate:"min=0,max=1"`
	PresencePenalty  float32  `json:"presence_penalty" validate:"min=-2,max=2"`
	FrequencyPenalty float32  `json:"frequency_penalty" validate:"min=-2,max=2"`
	InitInstruction  string   `json:"init_instruction" validate:"required"`
	Stop             []string `json:"stop" validate:"max=4"`
	Samples          int      `json:"samples" validate:"min=1"`
	ContinueLast     bool     `json:"continue"`
	Session          *int     `json:"session" validate:"omitempty,min=0"`
	KeyPath          string   `json:"key_path"`
}

func DefaultTextParams() TextParams {
	return TextParams{
		MaxTokens:       models.DefaultMaxTokens,
		Temperature:     models.DefaultTemperature,
		TopP:            models.DefaultTopP,
		InitInstruction: models.DefaultInitInstruction,
		Samples:         models.DefaultSamples,
	}
}

type TextService struct {
	*BaseService
}

func (s *TextService) Category() models.Category { return models.Text }

// Plan validates p and builds the request. Chat mode prefixes the selected
// session; completion mode only uses the continuation to place the result.
func (s *TextService) Plan(p TextParams) (*Plan, error) {
	if err := s.Validate(p); err != nil {
		return nil, err
	}
	task, err := parseMode(p.Mode, models.Text, models.TextCompletion)
	if err != nil {
		return nil, err
	}
	cont := continuation(p.ContinueLast, p.Session)
	prior, err := s.history.Session(models.Text, cont)
	if err != nil {
		return nil, err
	}

	body := &models.RequestBody{
		Model:            task.Model(),
		Stop:             p.Stop,
		Temperature:      models.Float32(p.Temperature),
		TopP:             models.Float32(p.TopP),
		MaxTokens:        models.Int(p.MaxTokens),
		N:                models.Int(p.Samples),
		PresencePenalty:  models.Float32(p.PresencePenalty),
		FrequencyPenalty: models.Float32(p.FrequencyPenalty),
	}
	var text string
	if task == models.ChatCompletion {
		msgs, err := prompt.BuildChat(p.InitInstruction, p.Prompt, p.ContextFile, prior)
		if err != nil {
			return nil, err
		}
		body.Messages = msgs
		text = prompt.Flatten(msgs)
	} else {
		if body.Prompt, err = prompt.BuildPrompt(p.Prompt, p.ContextFile); err != nil {
			return nil, err
		}
		body.Suffix = p.Suffix
		text = body.Prompt
	}
	return s.plan(task, p.Prompt, body, p.KeyPath, cost.TokenCost(text, body.Model, p.Samples), cont), nil
}
