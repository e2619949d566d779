package commands

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/stardustagi/gptshell/libs/errors"
	"github.com/stardustagi/gptshell/libs/logs"
	"github.com/stardustagi/gptshell/llm/history"
	"github.com/stardustagi/gptshell/llm/models"
	"github.com/stardustagi/gptshell/services"
	"github.com/stardustagi/gptshell/utils"
)

// TextCommand text
type TextCommand struct {
	Mode             string   `long:"mode" choice:"text" choice:"completion" choice:"chat" description:"Completion mode (default text)"`
	ContextFile      string   `long:"context-file" description:"File whose contents are prepended to the prompt"`
	Suffix           string   `long:"suffix" description:"Text after the completion (text mode)"`
	MaxTokens        int      `long:"max-tokens" description:"Maximum tokens to generate, 1-4096 (default 200)"`
	Temperature      float32  `long:"temperature" description:"Sampling temperature, 0-2 (default 1)"`
	TopP             float32  `long:"top-p" description:"Nucleus sampling, 0-1 (default 1)"`
	PresencePenalty  float32  `long:"presence-penalty" description:"Presence penalty, -2-2"`
	FrequencyPenalty float32  `long:"frequency-penalty" description:"Frequency penalty, -2-2"`
	Init             string   `long:"init" description:"System instruction for chat mode"`
	Stop             []string `long:"stop" description:"Stop sequence (up to 4)"`
	Samples          int      `long:"samples" short:"n" description:"Number of completions (default 1)"`
	Continue         bool     `long:"continue" short:"c" description:"Continue the last session"`
	Session          *int     `long:"session" description:"Continue the session at this index"`
	KeyPath          string   `long:"key-path" description:"Credential file"`
	Args             struct {
		Prompt []string `positional-arg-name:"prompt"`
	} `positional-args:"yes"`

	inv *invocation
}

func newTextCommand(inv *invocation) *TextCommand {
	d := services.DefaultTextParams()
	return &TextCommand{
		MaxTokens:   d.MaxTokens,
		Temperature: d.Temperature,
		TopP:        d.TopP,
		Init:        d.InitInstruction,
		Samples:     d.Samples,
		inv:         inv,
	}
}

func (c *TextCommand) Params() services.TextParams {
	return services.TextParams{
		Prompt:           strings.Join(c.Args.Prompt, " "),
		Mode:             c.Mode,
		ContextFile:      c.ContextFile,
		Suffix:           c.Suffix,
		MaxTokens:        c.MaxTokens,
		Temperature:      c.Temperature,
		TopP:             c.TopP,
		PresencePenalty:  c.PresencePenalty,
		FrequencyPenalty: c.FrequencyPenalty,
		InitInstruction:  c.Init,
		Stop:             c.Stop,
		Samples:          c.Samples,
		ContinueLast:     c.Continue,
		Session:          c.Session,
		KeyPath:          c.inv.rt.keyPath(c.KeyPath),
	}
}

func (c *TextCommand) Execute(_ []string) error {
	if err := c.inv.begin(); err != nil {
		return err
	}
	svc := c.inv.rt.services.Text
	plan, err := svc.Plan(c.Params())
	if err != nil {
		return c.inv.fail(err)
	}
	return c.inv.invoke(plan, svc, nil)
}

// ImageCommand image
type ImageCommand struct {
	Mode    string `long:"mode" choice:"generation" choice:"generate" choice:"edit" choice:"variation" description:"Image mode (default generation)"`
	Image   string `long:"image" description:"Source PNG (edit, variation)"`
	Mask    string `long:"mask" description:"Mask PNG (edit)"`
	Size    string `long:"size" choice:"256x256" choice:"512x512" choice:"1024x1024" description:"Image size (default 256x256)"`
	Samples int    `long:"samples" short:"n" description:"Number of images, 1-10 (default 1)"`
	SaveDir string `long:"save-dir" description:"Download the generated images into this directory"`
	KeyPath string `long:"key-path" description:"Credential file"`
	Args    struct {
		Prompt []string `positional-arg-name:"prompt"`
	} `positional-args:"yes"`

	inv *invocation
}

func newImageCommand(inv *invocation) *ImageCommand {
	d := services.DefaultImageParams()
	return &ImageCommand{Size: d.Size, Samples: d.Samples, inv: inv}
}

func (c *ImageCommand) Params() services.ImageParams {
	return services.ImageParams{
		Prompt:  strings.Join(c.Args.Prompt, " "),
		Mode:    c.Mode,
		Image:   c.Image,
		Mask:    c.Mask,
		Size:    c.Size,
		Samples: c.Samples,
		KeyPath: c.inv.rt.keyPath(c.KeyPath),
	}
}

func (c *ImageCommand) Execute(_ []string) error {
	if err := c.inv.begin(); err != nil {
		return err
	}
	svc := c.inv.rt.services.Image
	plan, err := svc.Plan(c.Params())
	if err != nil {
		return c.inv.fail(err)
	}
	var after func(any) error
	if c.SaveDir != "" {
		after = func(data any) error {
			return c.save(data.(models.Response))
		}
	}
	return c.inv.invoke(plan, svc, after)
}

// save 下载生成的图片到 SaveDir
func (c *ImageCommand) save(resp models.Response) error {
	rt := c.inv.rt
	base := history.BackupName(models.Image, time.Now())
	for i, url := range resp.Body {
		if url == "" {
			continue
		}
		data, err := utils.Download(c.inv.ctx, url, 3)
		if err != nil {
			return errors.Wrap(errors.KindNetwork, err, "failed to download "+url)
		}
		path := filepath.Join(c.SaveDir, fmt.Sprintf("%s_%d.png", base, i))
		if err := utils.AtomicWriteFile(path, data, 0o644, 0o755); err != nil {
			return errors.Wrap(errors.KindConfig, err, "failed to save "+path)
		}
		rt.logger.Info("image saved", logs.String("path", path), logs.Int("bytes", len(data)))
		if !c.inv.opts.JSON {
			color.New(color.FgGreen).Fprintf(rt.Err, "saved %s\n", path)
		}
	}
	return nil
}

// AudioCommand audio
type AudioCommand struct {
	Mode        string   `long:"mode" choice:"transcription" choice:"transcribe" choice:"translation" choice:"translate" description:"Audio mode (default transcription)"`
	Prompt      string   `long:"prompt" description:"Text to guide the transcription style"`
	Language    string   `long:"language" description:"Input language (ISO-639-1)"`
	Temperature float32  `long:"temperature" description:"Sampling temperature, 0-2 (default 1)"`
	Minutes     *float64 `long:"minutes" description:"Audio length in minutes, for the cost estimate (default 1)"`
	KeyPath     string   `long:"key-path" description:"Credential file"`
	Args        struct {
		File string `positional-arg-name:"file" required:"yes"`
	} `positional-args:"yes"`

	inv *invocation
}

func newAudioCommand(inv *invocation) *AudioCommand {
	d := services.DefaultAudioParams()
	minutes := 1.0
	return &AudioCommand{Temperature: d.Temperature, Minutes: &minutes, inv: inv}
}

func (c *AudioCommand) Params() services.AudioParams {
	return services.AudioParams{
		File:        c.Args.File,
		Mode:        c.Mode,
		Prompt:      c.Prompt,
		Language:    c.Language,
		Temperature: c.Temperature,
		Minutes:     c.Minutes,
		KeyPath:     c.inv.rt.keyPath(c.KeyPath),
	}
}

func (c *AudioCommand) Execute(_ []string) error {
	if err := c.inv.begin(); err != nil {
		return err
	}
	svc := c.inv.rt.services.Audio
	plan, err := svc.Plan(c.Params())
	if err != nil {
		return c.inv.fail(err)
	}
	return c.inv.invoke(plan, svc, nil)
}
