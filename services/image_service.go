package services

import (
	"github.com/stardustagi/gptshell/libs/errors"
	"github.com/stardustagi/gptshell/llm/cost"
	"github.com/stardustagi/gptshell/llm/history"
	"github.com/stardustagi/gptshell/llm/models"
)

// ImageParams 图片生成/编辑/变体参数
type ImageParams struct {
	Prompt  string `json:"prompt" validate:"max=4096"`
	Mode    string `json:"mode"`
	Image   string `json:"image" validate:"omitempty,pngfile"`
	Mask    string `json:"mask" validate:"omitempty,pngfile"`
	Size    string `json:"size" validate:"oneof=256x256 512x512 1024x1024"`
	Samples int    `json:"samples" validate:"min=1,max=10"`
	KeyPath string `json:"key_path"`
}

func DefaultImageParams() ImageParams {
	return ImageParams{Size: models.DefaultImageSize, Samples: models.DefaultSamples}
}

type ImageService struct {
	*BaseService
}

func (s *ImageService) Category() models.Category { return models.Image }

func (s *ImageService) Plan(p ImageParams) (*Plan, error) {
	if err := s.Validate(p); err != nil {
		return nil, err
	}
	task, err := parseMode(p.Mode, models.Image, models.ImageGeneration)
	if err != nil {
		return nil, err
	}

	body := &models.RequestBody{Size: p.Size, N: models.Int(p.Samples)}
	costPrompt := p.Prompt
	switch task {
	case models.ImageGeneration:
		if p.Prompt == "" {
			return nil, errors.New(errors.KindValidation, "prompt is required for image generation")
		}
		body.Prompt = p.Prompt
	case models.ImageEdit:
		if p.Prompt == "" {
			return nil, errors.New(errors.KindValidation, "prompt is required for image edit")
		}
		if err := requireFile("image", p.Image); err != nil {
			return nil, err
		}
		if err := requireFile("mask", p.Mask); err != nil {
			return nil, err
		}
		body.Prompt, body.Image, body.Mask = p.Prompt, p.Image, p.Mask
	case models.ImageVariation:
		if err := requireFile("image", p.Image); err != nil {
			return nil, err
		}
		body.Image = p.Image
		costPrompt = ""
	}
	return s.plan(task, p.Prompt, body, p.KeyPath,
		cost.ImageCost(p.Size, costPrompt, p.Samples), history.NewSession()), nil
}
