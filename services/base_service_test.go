package services

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stardustagi/gptshell/libs/errors"
	"github.com/stardustagi/gptshell/llm/clients"
	"github.com/stardustagi/gptshell/llm/cost"
	"github.com/stardustagi/gptshell/llm/history"
	"github.com/stardustagi/gptshell/llm/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap/zaptest"
)

// fakeDispatcher 记录请求并返回固定响应
type fakeDispatcher struct {
	mu       sync.Mutex
	requests []clients.Request
	reply    string
	err      error
}

func (f *fakeDispatcher) Dispatch(_ context.Context, req clients.Request) (gjson.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return gjson.Result{}, f.err
	}
	return gjson.Parse(f.reply), nil
}

func (f *fakeDispatcher) Endpoint(t models.Task) string {
	return models.BaseURL + t.Endpoint()
}

func newServices(t *testing.T, reply string) (*Services, *fakeDispatcher) {
	d := &fakeDispatcher{reply: reply}
	return New(d, history.New(), zaptest.NewLogger(t)), d
}

func touch(t *testing.T, name string) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o600))
	return path
}

const chatReply = `{"choices":[{"message":{"role":"assistant","content":"\n\nHello there, how may I assist you today?"}}]}`

func TestTextPlanDefaults(t *testing.T) {
	s, _ := newServices(t, chatReply)
	p := DefaultTextParams()
	p.Prompt = "Say this is a test"
	p.KeyPath = "/keys/k"

	plan, err := s.Text.Plan(p)
	require.NoError(t, err)
	assert.Equal(t, models.TextCompletion, plan.Task)
	assert.Equal(t, models.Text, plan.Category)
	assert.Equal(t, "Say this is a test\n", plan.Body.Prompt)
	assert.Equal(t, "text-davinci-003", plan.Body.Model)
	assert.Equal(t, 200, *plan.Body.MaxTokens)
	assert.Equal(t, "/keys/k", plan.CredentialPath)
	assert.Equal(t, "https://api.openai.com/v1/completions", plan.Endpoint)
	assert.InDelta(t, cost.TokenCost("Say this is a test\n", "text-davinci-003", 1), plan.Cost, 1e-12)
	assert.True(t, plan.Continuation.IsNew())
	assert.Contains(t, plan.Describe(), "estimated cost")
}

func TestTextPlanValidation(t *testing.T) {
	s, d := newServices(t, chatReply)
	bad := []func(*TextParams){
		func(p *TextParams) { p.MaxTokens = 0 },
		func(p *TextParams) { p.MaxTokens = 5000 },
		func(p *TextParams) { p.Temperature = 2.5 },
		func(p *TextParams) { p.TopP = -0.1 },
		func(p *TextParams) { p.PresencePenalty = 3 },
		func(p *TextParams) { p.Stop = []string{"a", "b", "c", "d", "e"} },
		func(p *TextParams) { p.Samples = 0 },
		func(p *TextParams) { p.InitInstruction = "" },
		func(p *TextParams) { p.Mode = "edit" },
		func(p *TextParams) { p.Prompt = "" },
		func(p *TextParams) {
			p.Prompt = ""
			p.Mode = "chat"
		},
	}
	for i, mutate := range bad {
		p := DefaultTextParams()
		p.Prompt = "x"
		mutate(&p)
		_, err := s.Text.Plan(p)
		require.Error(t, err, "case %d", i)
		assert.True(t, errors.IsKind(err, errors.KindValidation), "case %d: %v", i, err)
	}
	assert.Empty(t, d.requests)
}

func TestChatContinuation(t *testing.T) {
	s, d := newServices(t, chatReply)
	ctx := context.Background()

	p := DefaultTextParams()
	p.Mode = "chat"
	p.Prompt = "Hello"
	plan, err := s.Text.Plan(p)
	require.NoError(t, err)
	assert.Len(t, plan.Body.Messages, 2)
	assert.Empty(t, plan.Body.Prompt)

	resp, err := s.Text.Execute(ctx, plan)
	require.NoError(t, err)
	assert.Equal(t, "\n\nHello there, how may I assist you today?", resp.First())

	p.Prompt = "And again"
	p.ContinueLast = true
	plan, err = s.Text.Plan(p)
	require.NoError(t, err)
	require.Len(t, plan.Body.Messages, 4)
	assert.Equal(t, "Hello", plan.Body.Messages[1].Content)
	assert.Equal(t, resp.First(), plan.Body.Messages[2].Content)
	_, err = s.Text.Execute(ctx, plan)
	require.NoError(t, err)

	idx := 0
	p.ContinueLast = false
	p.Session = &idx
	plan, err = s.Text.Plan(p)
	require.NoError(t, err)
	assert.Len(t, plan.Body.Messages, 2*2+2)

	assert.Len(t, d.requests, 2)
	assert.Equal(t, 1, s.History().Len(models.Text))
}

func TestTextPlanSessionOutOfRange(t *testing.T) {
	s, d := newServices(t, chatReply)
	idx := 3
	p := DefaultTextParams()
	p.Mode = "chat"
	p.Prompt = "x"
	p.Session = &idx
	_, err := s.Text.Plan(p)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindValidation))
	assert.Empty(t, d.requests)
	assert.Equal(t, 0, s.History().Len(models.Text))
}

func TestExecuteFailureLeavesHistory(t *testing.T) {
	s, d := newServices(t, `{"unexpected": true}`)
	p := DefaultTextParams()
	p.Prompt = "x"
	plan, err := s.Text.Plan(p)
	require.NoError(t, err)

	_, err = s.Text.Execute(context.Background(), plan)
	assert.True(t, errors.IsKind(err, errors.KindParse))
	assert.Equal(t, 0, s.History().Len(models.Text))

	d.err = errors.HTTP(500, "boom")
	_, err = s.Text.Execute(context.Background(), plan)
	assert.True(t, errors.IsKind(err, errors.KindHTTP))
	assert.Equal(t, 0, s.History().Len(models.Text))
}

func TestImagePlan(t *testing.T) {
	s, d := newServices(t, `{"data":[{"url":"https://img/1.png"}]}`)
	png := touch(t, "in.png")
	mask := touch(t, "mask.png")

	p := DefaultImageParams()
	p.Prompt = "a cat"
	plan, err := s.Image.Plan(p)
	require.NoError(t, err)
	assert.Equal(t, models.ImageGeneration, plan.Task)
	assert.InDelta(t, cost.ImageCost("256x256", "a cat", 1), plan.Cost, 1e-12)

	// 生成与编辑必须有 prompt
	p.Prompt = ""
	_, err = s.Image.Plan(p)
	assert.True(t, errors.IsKind(err, errors.KindValidation))

	p = DefaultImageParams()
	p.Mode = "edit"
	p.Prompt = "a hat"
	p.Image = png
	_, err = s.Image.Plan(p)
	assert.True(t, errors.IsKind(err, errors.KindValidation), "mask required")
	p.Mask = filepath.Join(t.TempDir(), "missing.png")
	_, err = s.Image.Plan(p)
	assert.True(t, errors.IsKind(err, errors.KindNotFound))
	p.Mask = mask
	plan, err = s.Image.Plan(p)
	require.NoError(t, err)
	assert.Len(t, plan.Body.Files(), 2)

	p = DefaultImageParams()
	p.Mode = "variation"
	p.Image = touch(t, "in.jpg")
	_, err = s.Image.Plan(p)
	assert.True(t, errors.IsKind(err, errors.KindValidation), "png only")
	p.Image = png
	p.Size = "300x300"
	_, err = s.Image.Plan(p)
	assert.True(t, errors.IsKind(err, errors.KindValidation))
	p.Size = "1024x1024"
	p.Samples = 2
	plan, err = s.Image.Plan(p)
	require.NoError(t, err)
	assert.InDelta(t, 0.04, plan.Cost, 1e-12)
	assert.Empty(t, plan.Body.Prompt)

	// 图片结果总是新会话
	for i := 0; i < 2; i++ {
		_, err = s.Image.Execute(context.Background(), plan)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, s.History().Len(models.Image))
	assert.Equal(t, models.ImageVariation, d.requests[0].Task)
	assert.True(t, d.requests[0].Upload)
}

func TestAudioPlan(t *testing.T) {
	s, _ := newServices(t, `{"text":"hello world"}`)

	p := DefaultAudioParams()
	p.File = touch(t, "clip.txt")
	_, err := s.Audio.Plan(p)
	assert.True(t, errors.IsKind(err, errors.KindValidation))

	p.File = filepath.Join(t.TempDir(), "missing.wav")
	_, err = s.Audio.Plan(p)
	assert.True(t, errors.IsKind(err, errors.KindNotFound))

	p.File = touch(t, "clip.MP3")
	p.Mode = "translation"
	p.Prompt = "guide"
	plan, err := s.Audio.Plan(p)
	require.NoError(t, err)
	assert.Equal(t, models.AudioTranslation, plan.Task)
	assert.Equal(t, "whisper-1", plan.Body.Model)
	assert.Equal(t, float64(0), plan.Cost)

	minutes := 2.0
	p.Minutes = &minutes
	plan, err = s.Audio.Plan(p)
	require.NoError(t, err)
	assert.InDelta(t, cost.AudioCost(&minutes, "guide", 1), plan.Cost, 1e-12)

	resp, err := s.Audio.Execute(context.Background(), plan)
	require.NoError(t, err)
	assert.Equal(t, "guide", resp.Prompt)
	assert.Equal(t, []string{"hello world"}, resp.Body)
	assert.Equal(t, 1, s.History().Len(models.Audio))
}

func TestServiceFactory(t *testing.T) {
	s, _ := newServices(t, "{}")
	for _, c := range models.Categories() {
		svc := s.ServiceFactory(c)
		require.NotNil(t, svc)
		assert.Equal(t, c, svc.Category())
	}
	assert.Nil(t, s.ServiceFactory(models.CategoryUnknown))
}
