// Package prompt turns user input and prior conversation into request content.
package prompt

import (
	"os"
	"strings"

	"github.com/stardustagi/gptshell/libs/errors"
	"github.com/stardustagi/gptshell/llm/models"
	"github.com/stardustagi/gptshell/utils"
)

// readContext 读取上下文文件；路径为空或文件不存在时返回空串
func readContext(contextPath string) (string, error) {
	if !utils.FileExists(contextPath) {
		return "", nil
	}
	data, err := os.ReadFile(contextPath)
	if err != nil {
		return "", errors.Wrap(errors.KindConfig, err, "failed to read context file "+contextPath)
	}
	return string(data), nil
}

// BuildPrompt returns the context file contents (if any) followed by the
// prompt and a trailing newline.
func BuildPrompt(prompt, contextPath string) (string, error) {
	ctx, err := readContext(contextPath)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.Grow(len(ctx) + len(prompt) + 1)
	sb.WriteString(ctx)
	sb.WriteString(prompt)
	sb.WriteByte('\n')
	return sb.String(), nil
}

// BuildChat assembles the chat message list: the system instruction, one
// user/assistant pair per prior response and the new user turn, so a prior
// session of k responses yields 2k+2 messages.
func BuildChat(init, prompt, contextPath string, prior models.Session) ([]models.ChatMessage, error) {
	ctx, err := readContext(contextPath)
	if err != nil {
		return nil, err
	}
	messages := make([]models.ChatMessage, 0, 2*len(prior)+2)
	messages = append(messages, models.ChatMessage{Role: models.RoleSystem, Content: init})
	for _, r := range prior {
		messages = append(messages,
			models.ChatMessage{Role: models.RoleUser, Content: r.Prompt},
			models.ChatMessage{Role: models.RoleAssistant, Content: r.First()},
		)
	}
	messages = append(messages, models.ChatMessage{Role: models.RoleUser, Content: ctx + prompt})
	return messages, nil
}

// Flatten joins message contents with newlines, the text the cost estimate
// is computed over for chat requests.
func Flatten(messages []models.ChatMessage) string {
	parts := make([]string, len(messages))
	for i, m := range messages {
		parts[i] = m.Content
	}
	return strings.Join(parts, "\n")
}
