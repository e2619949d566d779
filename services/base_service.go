package services

import (
	"context"
	stderrors "errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/stardustagi/gptshell/libs/conf"
	"github.com/stardustagi/gptshell/libs/errors"
	"github.com/stardustagi/gptshell/libs/logs"
	"github.com/stardustagi/gptshell/llm/clients"
	"github.com/stardustagi/gptshell/llm/history"
	"github.com/stardustagi/gptshell/llm/models"
	"github.com/stardustagi/gptshell/utils"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// Dispatcher 发送请求并返回响应 JSON
type Dispatcher interface {
	Dispatch(ctx context.Context, req clients.Request) (gjson.Result, error)
	Endpoint(t models.Task) string
}

// Plan is a fully validated request together with its cost estimate. Nothing
// has been sent when a Plan exists.
type Plan struct {
	Task           models.Task
	Category       models.Category
	Prompt         string
	Body           *models.RequestBody
	CredentialPath string
	Endpoint       string
	Cost           float64
	Continuation   history.Continuation
}

// Describe renders the confirmation text shown before a request is sent.
func (p *Plan) Describe() string {
	body, err := json.MarshalIndent(p.Body, "", "  ")
	if err != nil {
		body = []byte(err.Error())
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Sending a request to %s\n", p.Endpoint)
	fmt.Fprintf(&sb, "with API key from: %s\n", p.CredentialPath)
	fmt.Fprintf(&sb, "estimated cost: %g\n", p.Cost)
	sb.WriteString("---\nRequest body: ")
	sb.Write(body)
	sb.WriteByte('\n')
	for _, f := range p.Body.Files() {
		fmt.Fprintf(&sb, "upload %s: %s\n", f.Name, f.Path)
	}
	sb.WriteString("---")
	return sb.String()
}

// Service 统一所有调用服务的行为
type Service interface {
	Category() models.Category
	Execute(ctx context.Context, plan *Plan) (models.Response, error)
}

type BaseService struct {
	logger     *zap.Logger
	dispatcher Dispatcher
	history    *history.History
	validate   *validator.Validate
}

// audioExts 支持的音频格式
var audioExts = map[string]bool{".mp3": true, ".mp4": true, ".mpeg": true, ".wav": true, ".webm": true, ".m4a": true}

func NewValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("audiofile", func(fl validator.FieldLevel) bool {
		return audioExts[strings.ToLower(filepath.Ext(fl.Field().String()))]
	})
	_ = v.RegisterValidation("pngfile", func(fl validator.FieldLevel) bool {
		return strings.EqualFold(filepath.Ext(fl.Field().String()), ".png")
	})
	return v
}

func NewBaseService(d Dispatcher, h *history.History, logger *zap.Logger) *BaseService {
	if logger == nil {
		logger = logs.GetLogger("services")
	}
	if h == nil {
		h = history.New()
	}
	return &BaseService{
		logger:     logger,
		dispatcher: d,
		history:    h,
		validate:   NewValidator(),
	}
}

func (bs *BaseService) History() *history.History { return bs.history }

// Validator is shared with the HTTP facade so both surfaces apply one rule set.
func (bs *BaseService) Validator() *validator.Validate { return bs.validate }

// Validate 参数校验，失败时返回 KindValidation
func (bs *BaseService) Validate(params any) error {
	err := bs.validate.Struct(params)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !stderrors.As(err, &ve) {
		return errors.Wrap(errors.KindValidation, err, "invalid parameters")
	}
	msgs := make([]string, 0, len(ve))
	for _, fe := range ve {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s (got %v)", fe.Field(), fe.Tag(), fe.Param(), fe.Value()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s (got %v)", fe.Field(), fe.Tag(), fe.Value()))
		}
	}
	return errors.New(errors.KindValidation, strings.Join(msgs, "; "))
}

// Execute dispatches the plan, parses the reply and records it. History only
// changes once the response has been parsed successfully.
func (bs *BaseService) Execute(ctx context.Context, plan *Plan) (models.Response, error) {
	if plan == nil || plan.Body == nil {
		return models.Response{}, errors.New(errors.KindValidation, "empty plan")
	}
	doc, err := bs.dispatcher.Dispatch(ctx, clients.Request{
		Task:           plan.Task,
		Body:           plan.Body,
		CredentialPath: plan.CredentialPath,
		Upload:         plan.Task.Upload(),
	})
	if err != nil {
		return models.Response{}, err
	}
	resp, err := clients.ParseResponse(plan.Task, plan.Prompt, doc)
	if err != nil {
		return models.Response{}, err
	}
	if err := bs.history.Append(plan.Category, resp, plan.Continuation); err != nil {
		return models.Response{}, err
	}
	bs.logger.Info("response recorded",
		logs.String("task", plan.Task.String()),
		logs.String("continuation", plan.Continuation.String()),
		logs.Int("results", len(resp.Body)))
	return resp, nil
}

func (bs *BaseService) plan(task models.Task, prompt string, body *models.RequestBody, keyPath string, cost float64, cont history.Continuation) *Plan {
	if keyPath == "" {
		keyPath = conf.DefaultCredentialPath()
	}
	return &Plan{
		Task:           task,
		Category:       task.Category(),
		Prompt:         prompt,
		Body:           body,
		CredentialPath: keyPath,
		Endpoint:       bs.dispatcher.Endpoint(task),
		Cost:           cost,
		Continuation:   cont,
	}
}

// parseMode 解析模式并确认其属于分类 c
func parseMode(mode string, c models.Category, def models.Task) (models.Task, error) {
	if mode == "" {
		return def, nil
	}
	t, err := models.ParseTask(mode)
	if err != nil {
		return models.TaskUnknown, err
	}
	if t.Category() != c {
		return models.TaskUnknown, errors.Newf(errors.KindValidation, "%s is not a %s mode", t, c)
	}
	return t, nil
}

func requireFile(name, path string) error {
	if path == "" {
		return errors.Newf(errors.KindValidation, "%s is required", name)
	}
	if !utils.FileExists(path) {
		return errors.Newf(errors.KindNotFound, "%s file %s does not exist", name, path)
	}
	return nil
}

func continuation(last bool, index *int) history.Continuation {
	switch {
	case index != nil:
		return history.ContinueAt(*index)
	case last:
		return history.ContinueLast()
	default:
		return history.NewSession()
	}
}

// Services 三类调用服务
type Services struct {
	*BaseService
	Text  *TextService
	Image *ImageService
	Audio *AudioService
}

func New(d Dispatcher, h *history.History, logger *zap.Logger) *Services {
	base := NewBaseService(d, h, logger)
	return &Services{
		BaseService: base,
		Text:        &TextService{base},
		Image:       &ImageService{base},
		Audio:       &AudioService{base},
	}
}

// ServiceFactory 按分类返回服务
func (s *Services) ServiceFactory(c models.Category) Service {
	switch c {
	case models.Text:
		return s.Text
	case models.Image:
		return s.Image
	case models.Audio:
		return s.Audio
	default:
		return nil
	}
}
