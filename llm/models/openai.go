package models

import (
	"time"
)

// BaseURL OpenAI API 根地址
const BaseURL = "https://api.openai.com/v1"

type ChatMessage struct {
	Role    string `json:"role"`    // "user", "assistant", "system"
	Content string `json:"content"` // e.g., "Hello!"
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// RequestBody 所有任务共用的请求体，只填充当前任务相关的字段，
// 其余字段保持零值并在序列化时省略
type RequestBody struct {
	// text
	Prompt   string        `json:"prompt,omitempty"`
	Model    string        `json:"model,omitempty"`
	Messages []ChatMessage `json:"messages,omitempty"`
	Stop     []string      `json:"stop,omitempty"`
	Suffix   string        `json:"suffix,omitempty"`

	// image
	Size  string `json:"size,omitempty"`
	Image string `json:"-"`
	Mask  string `json:"-"`

	// audio
	File     string `json:"-"`
	Language string `json:"language,omitempty"`

	// generation
	Temperature      *float32 `json:"temperature,omitempty"`
	TopP             *float32 `json:"top_p,omitempty"`
	MaxTokens        *int     `json:"max_tokens,omitempty"`
	N                *int     `json:"n,omitempty"`
	PresencePenalty  *float32 `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float32 `json:"frequency_penalty,omitempty"`
}

// FileField 需要以二进制分片上传的文件字段
type FileField struct {
	Name string
	Path string
}

// Files returns the populated file-path fields in upload order.
func (b *RequestBody) Files() []FileField {
	var files []FileField
	if b.Image != "" {
		files = append(files, FileField{Name: "image", Path: b.Image})
	}
	if b.Mask != "" {
		files = append(files, FileField{Name: "mask", Path: b.Mask})
	}
	if b.File != "" {
		files = append(files, FileField{Name: "file", Path: b.File})
	}
	return files
}

func Float32(v float32) *float32 { return &v }

func Int(v int) *int { return &v }

// Defaults applied by the command front-end.
const (
	DefaultTemperature     float32 = 1
	DefaultTopP            float32 = 1
	DefaultMaxTokens               = 200
	DefaultSamples                 = 1
	DefaultInitInstruction         = "You are a helpful assistant"
	DefaultImageSize               = "256x256"
)

// ImageSizes 支持的图片尺寸
var ImageSizes = []string{"256x256", "512x512", "1024x1024"}

// Response 统一的任务结果，构造后不再修改
type Response struct {
	Prompt    string    `json:"prompt"`
	Body      []string  `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}

func NewResponse(prompt string, body []string) Response {
	return Response{
		Prompt:    prompt,
		Body:      body,
		Timestamp: time.Now(),
	}
}

// Clone returns a copy that shares no slices with r.
func (r Response) Clone() Response {
	if r.Body == nil {
		return r
	}
	body := make([]string, len(r.Body))
	copy(body, r.Body)
	r.Body = body
	return r
}

// First returns the first body element or "" when the body is empty.
func (r Response) First() string {
	if len(r.Body) == 0 {
		return ""
	}
	return r.Body[0]
}

// Session 一个对话线程，按时间顺序追加
type Session []Response

// Clone deep-copies the session.
func (s Session) Clone() Session {
	if s == nil {
		return nil
	}
	out := make(Session, len(s))
	for i, r := range s {
		out[i] = r.Clone()
	}
	return out
}

// CloneSessions deep-copies a list of sessions.
func CloneSessions(sessions []Session) []Session {
	if sessions == nil {
		return nil
	}
	out := make([]Session, len(sessions))
	for i, s := range sessions {
		out[i] = s.Clone()
	}
	return out
}
