package models

import (
	"strings"

	"github.com/stardustagi/gptshell/libs/errors"
)

// Task 支持的请求类型
type Task int

const (
	TaskUnknown Task = iota
	TextCompletion
	ChatCompletion
	ImageGeneration
	ImageEdit
	ImageVariation
	AudioTranscription
	AudioTranslation
)

// Category 任务族，用于划分历史记录
type Category int

const (
	CategoryUnknown Category = iota
	Text
	Image
	Audio
)

type taskInfo struct {
	name     string
	category Category
	endpoint string
	model    string
	upload   bool
}

// tasks is the closed task table: endpoint path, default model and
// encoding for every supported request kind.
var tasks = map[Task]taskInfo{
	TextCompletion:     {"TextCompletion", Text, "/completions", "text-davinci-003", false},
	ChatCompletion:     {"ChatCompletion", Text, "/chat/completions", "gpt-3.5-turbo-0301", false},
	ImageGeneration:    {"ImageGeneration", Image, "/images/generations", "", false},
	ImageEdit:          {"ImageEdit", Image, "/images/edits", "", true},
	ImageVariation:     {"ImageVariation", Image, "/images/variations", "", true},
	AudioTranscription: {"AudioTranscription", Audio, "/audio/transcriptions", "whisper-1", true},
	AudioTranslation:   {"AudioTranslation", Audio, "/audio/translations", "whisper-1", true},
}

// taskAliases 命令行可用的简写
var taskAliases = map[string]Task{
	"text":          TextCompletion,
	"completion":    TextCompletion,
	"chat":          ChatCompletion,
	"generation":    ImageGeneration,
	"generate":      ImageGeneration,
	"edit":          ImageEdit,
	"variation":     ImageVariation,
	"transcription": AudioTranscription,
	"transcribe":    AudioTranscription,
	"translation":   AudioTranslation,
	"translate":     AudioTranslation,
}

func (t Task) Valid() bool {
	_, ok := tasks[t]
	return ok
}

func (t Task) String() string {
	if info, ok := tasks[t]; ok {
		return info.name
	}
	return "Unknown"
}

func (t Task) Category() Category { return tasks[t].category }

// Endpoint returns the path of the task relative to BaseURL.
func (t Task) Endpoint() string { return tasks[t].endpoint }

// Model returns the default model of the task; image tasks have none.
func (t Task) Model() string { return tasks[t].model }

// Upload reports whether the task is sent as multipart form data.
func (t Task) Upload() bool { return tasks[t].upload }

// ParseTask accepts the full task name or a short alias, case-insensitively.
func ParseTask(s string) (Task, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if t, ok := taskAliases[key]; ok {
		return t, nil
	}
	for t, info := range tasks {
		if strings.ToLower(info.name) == key {
			return t, nil
		}
	}
	return TaskUnknown, errors.Newf(errors.KindConfig, "invalid task %q", s)
}

// Tasks returns the tasks belonging to c in table order.
func (c Category) Tasks() []Task {
	var out []Task
	for t := TextCompletion; t <= AudioTranslation; t++ {
		if tasks[t].category == c {
			out = append(out, t)
		}
	}
	return out
}

var categoryNames = map[Category]string{
	Text:  "Text",
	Image: "Image",
	Audio: "Audio",
}

// categoryFamilies 备份文件前缀
var categoryFamilies = map[Category]string{
	Text:  "GPT",
	Image: "DALLE",
	Audio: "Whisper",
}

func (c Category) Valid() bool {
	_, ok := categoryNames[c]
	return ok
}

func (c Category) String() string {
	if s, ok := categoryNames[c]; ok {
		return s
	}
	return "Unknown"
}

// Family is the task-family name used to label backups.
func (c Category) Family() string { return categoryFamilies[c] }

// Categories returns every category in a stable order.
func Categories() []Category {
	return []Category{Text, Image, Audio}
}

func ParseCategory(s string) (Category, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for c, name := range categoryNames {
		if strings.ToLower(name) == key || strings.ToLower(categoryFamilies[c]) == key {
			return c, nil
		}
	}
	return CategoryUnknown, errors.Newf(errors.KindConfig, "invalid category %q", s)
}

// ParseCategories parses a category name; "all" or "" selects every category.
func ParseCategories(s string) ([]Category, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if key == "" || key == "all" {
		return Categories(), nil
	}
	c, err := ParseCategory(key)
	if err != nil {
		return nil, err
	}
	return []Category{c}, nil
}

// MarshalText/UnmarshalText let categories key JSON maps by name.
func (c Category) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, errors.Newf(errors.KindConfig, "invalid category %d", int(c))
	}
	return []byte(c.String()), nil
}

func (c *Category) UnmarshalText(b []byte) error {
	v, err := ParseCategory(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}
