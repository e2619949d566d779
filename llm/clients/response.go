package clients

import (
	"github.com/stardustagi/gptshell/libs/errors"
	"github.com/stardustagi/gptshell/libs/logs"
	"github.com/stardustagi/gptshell/llm/models"
	"github.com/tidwall/gjson"
)

// extractor 从响应 JSON 中取出结果列表
type extractor struct {
	container string
	field     string
}

// extractors is keyed by task; an empty container means the root object
// holds a single result in field.
var extractors = map[models.Task]extractor{
	models.ChatCompletion:     {container: "choices", field: "message.content"},
	models.TextCompletion:     {container: "choices", field: "text"},
	models.ImageGeneration:    {container: "data", field: "url"},
	models.ImageEdit:          {container: "data", field: "url"},
	models.ImageVariation:     {container: "data", field: "url"},
	models.AudioTranscription: {field: "text"},
	models.AudioTranslation:   {field: "text"},
}

// ParseResponse converts the provider document into a Response carrying the
// caller's prompt.
func ParseResponse(t models.Task, prompt string, doc gjson.Result) (models.Response, error) {
	ex, ok := extractors[t]
	if !ok {
		return models.Response{}, errors.Newf(errors.KindConfig, "invalid task %d", int(t))
	}
	if usage := doc.Get("usage"); usage.Exists() {
		logs.GetLogger("parser").Debug("quota usage", logs.String("task", t.String()), logs.String("usage", usage.Raw))
	}

	if ex.container == "" {
		if !doc.IsObject() {
			return models.Response{}, errors.Newf(errors.KindParse, "%s response is not an object", t)
		}
		return models.NewResponse(prompt, []string{doc.Get(ex.field).String()}), nil
	}

	list := doc.Get(ex.container)
	if !list.IsArray() {
		return models.Response{}, errors.Newf(errors.KindParse, "%s response has no %q array", t, ex.container)
	}
	items := list.Array()
	body := make([]string, 0, len(items))
	for _, item := range items {
		// 缺失或 null 记为空串
		body = append(body, item.Get(ex.field).String())
	}
	return models.NewResponse(prompt, body), nil
}
