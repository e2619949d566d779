package services

import (
	"github.com/stardustagi/gptshell/llm/cost"
	"github.com/stardustagi/gptshell/llm/history"
	"github.com/stardustagi/gptshell/llm/models"
)

// AudioParams 语音转写/翻译参数
type AudioParams struct {
	File        string  `json:"file" validate:"required,audiofile"`
	Mode        string  `json:"mode"`
	Prompt      string  `json:"prompt" validate:"max=4096"`
	Language    string  `json:"language"`
	Temperature float32 `json:"temperature" validate:"min=0,max=2"`
	// Minutes 仅用于费用估算
	Minutes *float64 `json:"minutes" validate:"omitempty,gt=0"`
	KeyPath string   `json:"key_path"`
}

func DefaultAudioParams() AudioParams {
	return AudioParams{Temperature: models.DefaultTemperature}
}

type AudioService struct {
	*BaseService
}

func (s *AudioService) Category() models.Category { return models.Audio }

func (s *AudioService) Plan(p AudioParams) (*Plan, error) {
	if err := s.Validate(p); err != nil {
		return nil, err
	}
	task, err := parseMode(p.Mode, models.Audio, models.AudioTranscription)
	if err != nil {
		return nil, err
	}
	if err := requireFile("audio", p.File); err != nil {
		return nil, err
	}
	body := &models.RequestBody{
		Model:       task.Model(),
		Prompt:      p.Prompt,
		File:        p.File,
		Language:    p.Language,
		Temperature: models.Float32(p.Temperature),
	}
	return s.plan(task, p.Prompt, body, p.KeyPath,
		cost.AudioCost(p.Minutes, p.Prompt, 1), history.NewSession()), nil
}
