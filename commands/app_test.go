package commands

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stardustagi/gptshell/libs/errors"
	"github.com/stardustagi/gptshell/llm/models"
	"github.com/stardustagi/gptshell/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "sk-test-key"

type memKeys struct {
	mu   sync.Mutex
	keys map[string]string
}

func (m *memKeys) Encrypt(path, plaintext string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[path] = plaintext
	return nil
}

func (m *memKeys) Decrypt(path string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.keys[path]
	if !ok {
		return "", errors.Newf(errors.KindNotFound, "no key at %s", path)
	}
	return k, nil
}

// provider 模拟上游接口，记录每个请求的消息数
type provider struct {
	server   *httptest.Server
	hits     atomic.Int64
	mu       sync.Mutex
	messages []int
	key      string
	auth     []string
}

// expect 切换上游接受的 key
func (p *provider) expect(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.key = key
}

func newProvider(t *testing.T) *provider {
	p := &provider{key: testKey}
	p.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/img/") {
			_, _ = w.Write([]byte("\x89PNG-" + r.URL.Path))
			return
		}
		p.hits.Add(1)
		p.mu.Lock()
		p.auth = append(p.auth, r.Header.Get("Authorization"))
		want := p.key
		p.mu.Unlock()
		assert.Equal(t, "Bearer "+want, r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/chat/completions":
			var body struct {
				Messages []models.ChatMessage `json:"messages"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			p.mu.Lock()
			p.messages = append(p.messages, len(body.Messages))
			n := len(p.messages)
			p.mu.Unlock()
			fmt.Fprintf(w, `{"choices":[{"message":{"role":"assistant","content":"reply %d"}}]}`, n)
		case "/completions":
			_, _ = io.WriteString(w, `{"choices":[{"text":"completed"}]}`)
		case "/images/generations":
			fmt.Fprintf(w, `{"data":[{"url":"%s/img/a.png"},{"url":"%s/img/b.png"}]}`, p.server.URL, p.server.URL)
		case "/audio/transcriptions":
			_, _ = io.WriteString(w, `{"text":"transcribed"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"error":"not found"}`)
		}
	}))
	t.Cleanup(p.server.Close)
	return p
}

type harness struct {
	app      *App
	rt       *Runtime
	out, err *bytes.Buffer
	config   string
	keyPath  string
	dir      string
	provider *provider
}

func newHarness(t *testing.T, stdin string) *harness {
	dir := t.TempDir()
	p := newProvider(t)
	keyPath := filepath.Join(dir, "API.key")
	config := filepath.Join(dir, "gptshell.toml")
	require.NoError(t, os.WriteFile(config, []byte(fmt.Sprintf(`
[log]
filename = ""

[openai]
base_url = %q
credential_path = %q

[history]
dir = %q

[server]
address = "127.0.0.1"
port = 0
`, p.server.URL, keyPath, filepath.Join(dir, "history"))), 0o600))

	h := &harness{
		out:      &bytes.Buffer{},
		err:      &bytes.Buffer{},
		config:   config,
		keyPath:  keyPath,
		dir:      dir,
		provider: p,
	}
	h.rt = NewRuntime(strings.NewReader(stdin), h.out, h.err)
	h.rt.Keys = &memKeys{keys: map[string]string{keyPath: testKey}}
	h.app = NewApp(h.rt)
	t.Cleanup(h.rt.Close)
	return h
}

func (h *harness) run(args ...string) error {
	h.out.Reset()
	h.err.Reset()
	return h.app.Run(context.Background(), append([]string{"--config", h.config}, args...))
}

func (h *harness) envelope(t *testing.T) protocol.BaseResponse {
	var out protocol.BaseResponse
	require.NoError(t, json.Unmarshal(h.out.Bytes(), &out), h.out.String())
	return out
}

func TestVersionAndHelp(t *testing.T) {
	h := newHarness(t, "")
	require.NoError(t, h.run("--version"))
	assert.Equal(t, "gptshell dev\n", h.out.String())

	require.NoError(t, h.run("--help"))
	assert.Contains(t, h.out.String(), "Usage:")

	require.NoError(t, h.run())
	assert.Contains(t, h.out.String(), "Available commands")

	err := h.run("bogus")
	assert.True(t, errors.IsKind(err, errors.KindValidation), "%v", err)

	err = h.run("text", "--no-such-flag")
	assert.Error(t, err)
}

func TestWhatIfSendsNothing(t *testing.T) {
	h := newHarness(t, "")
	require.NoError(t, h.run("--what-if", "text", "hello", "world"))
	assert.Contains(t, h.out.String(), "Sending a request to "+h.provider.server.URL+"/completions")
	assert.Contains(t, h.out.String(), "with API key from: "+h.keyPath)
	assert.Contains(t, h.out.String(), `"prompt": "hello world\n"`)

	require.NoError(t, h.run("--json", "--what-if", "text", "--mode", "chat", "hi"))
	out := h.envelope(t)
	assert.Equal(t, 0, out.ErrCode)
	data := out.Data.(map[string]interface{})
	assert.Equal(t, "ChatCompletion", data["task"])
	assert.Equal(t, h.provider.server.URL+"/chat/completions", data["endpoint"])

	assert.Zero(t, h.provider.hits.Load())
	assert.Zero(t, h.rt.History().Len(models.Text))
}

func TestConfirmation(t *testing.T) {
	h := newHarness(t, "n\ny\n")
	require.NoError(t, h.run("text", "first"))
	assert.Contains(t, h.err.String(), "Proceed? [y/N]")
	assert.Contains(t, h.err.String(), "Skipped.")
	assert.Zero(t, h.provider.hits.Load())

	require.NoError(t, h.run("text", "second"))
	assert.Equal(t, int64(1), h.provider.hits.Load())
	assert.Equal(t, "completed\n", h.out.String())

	// 输入结束视为拒绝
	require.NoError(t, h.run("text", "third"))
	assert.Equal(t, int64(1), h.provider.hits.Load())
}

func TestChatContinuation(t *testing.T) {
	h := newHarness(t, "")
	require.NoError(t, h.run("-y", "text", "--mode", "chat", "hello"))
	assert.Equal(t, "reply 1\n", h.out.String())
	require.NoError(t, h.run("-y", "text", "--mode", "chat", "--continue", "again"))
	require.NoError(t, h.run("-y", "text", "--mode", "chat", "--session", "0", "third"))
	assert.Equal(t, []int{2, 4, 6}, h.provider.messages)

	err := h.run("-y", "text", "--mode", "chat", "--session", "5", "nope")
	assert.True(t, errors.IsKind(err, errors.KindValidation), "%v", err)
	assert.Equal(t, int64(3), h.provider.hits.Load())

	require.NoError(t, h.run("--json", "history", "--category", "text"))
	out := h.envelope(t)
	sessions := out.Data.(map[string]interface{})["Text"].([]interface{})
	require.Len(t, sessions, 1)
	assert.Len(t, sessions[0], 3)

	require.NoError(t, h.run("history"))
	assert.Contains(t, h.out.String(), "Text (1 sessions)")
	assert.Contains(t, h.out.String(), "> again")
	assert.Contains(t, h.out.String(), "reply 2")
}

func TestValidationFailsBeforeNetwork(t *testing.T) {
	h := newHarness(t, "")
	err := h.run("-y", "text", "--temperature", "3", "hot")
	assert.True(t, errors.IsKind(err, errors.KindValidation), "%v", err)

	err = h.run("-y", "--json", "image", "--mode", "edit", "--image", filepath.Join(h.dir, "missing.png"), "--mask", filepath.Join(h.dir, "mask.png"), "edit me")
	assert.True(t, errors.IsKind(err, errors.KindNotFound), "%v", err)
	out := h.envelope(t)
	assert.Equal(t, "not found", out.Kind)

	err = h.run("-y", "audio", filepath.Join(h.dir, "notes.txt"))
	assert.True(t, errors.IsKind(err, errors.KindValidation), "%v", err)
	assert.Zero(t, h.provider.hits.Load())
}

func TestImageSaveDir(t *testing.T) {
	h := newHarness(t, "")
	saveDir := filepath.Join(h.dir, "images")
	require.NoError(t, h.run("-y", "image", "--samples", "2", "--save-dir", saveDir, "a", "red", "fox"))
	assert.Contains(t, h.out.String(), h.provider.server.URL+"/img/a.png")

	files, err := filepath.Glob(filepath.Join(saveDir, "DALLE_*.png"))
	require.NoError(t, err)
	require.Len(t, files, 2)
	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG")))
	assert.Equal(t, 1, h.rt.History().Len(models.Image))
}

func TestAudioTranscription(t *testing.T) {
	h := newHarness(t, "")
	audio := filepath.Join(h.dir, "memo.mp3")
	require.NoError(t, os.WriteFile(audio, []byte("ID3"), 0o600))

	require.NoError(t, h.run("--what-if", "audio", "--minutes", "2", audio))
	assert.Contains(t, h.out.String(), "estimated cost: 0.012")
	assert.Contains(t, h.out.String(), "upload file: "+audio)

	require.NoError(t, h.run("-y", "--json", "audio", audio))
	out := h.envelope(t)
	assert.Equal(t, []interface{}{"transcribed"}, out.Data.(map[string]interface{})["body"])
}

func TestKeyCommands(t *testing.T) {
	h := newHarness(t, "sk-from-stdin\n")
	path := filepath.Join(h.dir, "other.key")

	require.NoError(t, h.run("set-key", "--path", path))
	assert.Contains(t, h.out.String(), "API key saved to "+path)
	require.NoError(t, h.run("get-key", "--path", path))
	assert.Equal(t, "sk-from-stdin\n", h.out.String())

	require.NoError(t, h.run("set-key", "--key", "sk-flag"))
	require.NoError(t, h.run("--json", "get-key"))
	assert.Equal(t, map[string]interface{}{"key": "sk-flag"}, h.envelope(t).Data)

	err := h.run("get-key", "--path", filepath.Join(h.dir, "absent.key"))
	assert.True(t, errors.IsKind(err, errors.KindNotFound))

	// stdin 已读完
	err = h.run("--json", "set-key", "--path", path)
	assert.True(t, errors.IsKind(err, errors.KindValidation), "%v", err)
	env := h.envelope(t)
	assert.Equal(t, "validation", env.Kind)
	assert.Contains(t, env.ErrMsg, "failed to read the api key")
}

func TestSetKeyReplacesCachedClient(t *testing.T) {
	h := newHarness(t, "")
	require.NoError(t, h.run("set-key", "--key", "sk-old"))
	h.provider.expect("sk-old")
	require.NoError(t, h.run("-y", "text", "hi"))

	require.NoError(t, h.run("set-key", "--key", "sk-new"))
	h.provider.expect("sk-new")
	require.NoError(t, h.run("-y", "text", "hi"))

	assert.Equal(t, []string{"Bearer sk-old", "Bearer sk-new"}, h.provider.auth)
}

func TestTextRequiresPrompt(t *testing.T) {
	h := newHarness(t, "")
	err := h.run("-y", "text")
	assert.True(t, errors.IsKind(err, errors.KindValidation), "%v", err)
	err = h.run("-y", "text", "--mode", "chat")
	assert.True(t, errors.IsKind(err, errors.KindValidation), "%v", err)
	assert.Zero(t, h.provider.hits.Load())
}

func TestBackupAndRestoreFiles(t *testing.T) {
	h := newHarness(t, "")
	require.NoError(t, h.run("-y", "text", "--mode", "chat", "hello"))
	require.NoError(t, h.run("-y", "text", "--mode", "chat", "--continue", "again"))

	require.NoError(t, h.run("backup", "--clear"))
	assert.Contains(t, h.out.String(), "Text -> ")
	assert.Zero(t, h.rt.History().Len(models.Text))

	require.NoError(t, h.run("--json", "restore", "--list"))
	names := h.envelope(t).Data.([]interface{})
	require.Len(t, names, 1)
	backup := names[0].(string)
	assert.Contains(t, filepath.Base(backup), "GPT_")

	require.NoError(t, h.run("restore", "--from", backup))
	assert.Contains(t, h.out.String(), "Restored 1 Text sessions")
	assert.Equal(t, 1, h.rt.History().Len(models.Text))

	err := h.run("restore", "--from", backup)
	assert.True(t, errors.IsKind(err, errors.KindState), "%v", err)
	require.NoError(t, h.run("restore", "--from", backup, "--force"))

	// 继续恢复后的会话
	require.NoError(t, h.run("-y", "text", "--mode", "chat", "--continue", "more"))
	assert.Equal(t, []int{2, 4, 6}, h.provider.messages)

	require.NoError(t, h.run("backup", "--category", "audio"))
	assert.Contains(t, h.out.String(), "Nothing to back up.")

	err = h.run("restore")
	assert.True(t, errors.IsKind(err, errors.KindValidation))
}
