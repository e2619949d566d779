package clients

import (
	"context"
	stderrors "errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/stardustagi/gptshell/libs/conf"
	"github.com/stardustagi/gptshell/libs/errors"
	"github.com/stardustagi/gptshell/libs/keystore"
	"github.com/stardustagi/gptshell/libs/logs"
	"github.com/stardustagi/gptshell/libs/pool"
	"github.com/stardustagi/gptshell/llm/models"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"resty.dev/v3"
)

// DefaultTimeout 单次请求超时
const DefaultTimeout = 5 * time.Minute

// Request 一次 API 调用
type Request struct {
	Task           models.Task
	Body           *models.RequestBody
	CredentialPath string
	// Upload 强制使用 multipart；任务本身需要上传时总是 multipart
	Upload bool
	// Method 为空时使用 POST
	Method string
}

// Dispatcher sends requests to the provider through pooled, credential-bound
// resty clients.
type Dispatcher struct {
	baseURL     string
	timeout     time.Duration
	lockTimeout time.Duration
	keys        keystore.Store
	clients     *pool.ClientPool[*resty.Client]
	metrics     *Metrics
	logger      *zap.Logger
}

type Option func(*Dispatcher)

func WithBaseURL(u string) Option {
	return func(d *Dispatcher) {
		if u != "" {
			d.baseURL = strings.TrimRight(u, "/")
		}
	}
}

func WithTimeout(t time.Duration) Option {
	return func(d *Dispatcher) {
		if t > 0 {
			d.timeout = t
		}
	}
}

func WithLockTimeout(t time.Duration) Option {
	return func(d *Dispatcher) { d.lockTimeout = t }
}

func WithKeyStore(s keystore.Store) Option {
	return func(d *Dispatcher) { d.keys = s }
}

func WithMetrics(m *Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		baseURL:     models.BaseURL,
		timeout:     DefaultTimeout,
		lockTimeout: pool.DefaultLockTimeout,
		keys:        keystore.NewFileStore(),
		logger:      logs.GetLogger("dispatcher"),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.clients = pool.NewClientPool(
		pool.WithLockTimeout[*resty.Client](d.lockTimeout),
		pool.WithCloser(func(c *resty.Client) { _ = c.Close() }),
		pool.WithLogger[*resty.Client](d.logger),
	)
	return d
}

// Endpoint returns the absolute URL for t.
func (d *Dispatcher) Endpoint(t models.Task) string {
	return d.baseURL + t.Endpoint()
}

// Close 释放所有缓存的客户端
func (d *Dispatcher) Close() {
	d.clients.CloseAll()
}

// Forget 丢弃 path 对应的缓存客户端，下次请求重新读取凭据
func (d *Dispatcher) Forget(path string) error {
	return d.clients.Remove(path)
}

// client resolves the pooled client bound to the credential at path.
func (d *Dispatcher) client(path string) (*resty.Client, error) {
	c, cached, err := d.clients.GetOrCreate(path, func() (*resty.Client, error) {
		key, err := d.keys.Decrypt(path)
		if err != nil {
			return nil, err
		}
		return resty.New().
			SetAuthToken(key).
			SetTimeout(d.timeout), nil
	})
	if err != nil {
		return nil, err
	}
	d.metrics.poolLookup(cached)
	return c, nil
}

func resolveMethod(m string) (string, error) {
	switch strings.ToUpper(strings.TrimSpace(m)) {
	case "", http.MethodPost:
		return http.MethodPost, nil
	case http.MethodPut:
		return http.MethodPut, nil
	default:
		return "", errors.Newf(errors.KindValidation, "unsupported http method %q", m)
	}
}

// Dispatch sends req and returns the provider's JSON document.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (gjson.Result, error) {
	if err := ctx.Err(); err != nil {
		return gjson.Result{}, errors.Wrap(errors.KindCancelled, err, "request cancelled")
	}
	if !req.Task.Valid() {
		return gjson.Result{}, errors.Newf(errors.KindConfig, "invalid task %d", int(req.Task))
	}
	if req.Body == nil {
		return gjson.Result{}, errors.New(errors.KindValidation, "request body is required")
	}
	method, err := resolveMethod(req.Method)
	if err != nil {
		return gjson.Result{}, err
	}
	upload := req.Upload || req.Task.Upload()
	if upload && len(req.Body.Files()) == 0 {
		return gjson.Result{}, errors.Newf(errors.KindValidation,
			"%s requires a file to upload", req.Task)
	}
	path := req.CredentialPath
	if path == "" {
		path = conf.DefaultCredentialPath()
	}

	id := uuid.NewString()
	logger := d.logger.With(logs.String("request_id", id), logs.String("task", req.Task.String()))

	c, err := d.client(path)
	if err != nil {
		return gjson.Result{}, err
	}

	r := c.R().SetContext(ctx)
	var files []*os.File
	defer func() {
		for _, f := range files {
			_ = f.Close()
		}
	}()
	if upload {
		files, err = setMultipart(r, req.Task, req.Body)
		if err != nil {
			return gjson.Result{}, err
		}
	} else {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return gjson.Result{}, errors.Wrap(errors.KindParse, err, "failed to encode request body")
		}
		r.SetHeader("Content-Type", "application/json").SetBody(data)
	}

	url := d.Endpoint(req.Task)
	logger.Debug("dispatching request", logs.String("url", url), logs.Bool("upload", upload))
	start := time.Now()
	resp, err := r.Execute(method, url)
	elapsed := time.Since(start)
	if err != nil {
		if ctx.Err() != nil || stderrors.Is(err, context.Canceled) {
			d.metrics.observe(req.Task.String(), "cancelled", elapsed.Seconds())
			logger.Warn("request cancelled", logs.Duration("elapsed", elapsed))
			return gjson.Result{}, errors.Wrap(errors.KindCancelled, err, "request cancelled")
		}
		d.metrics.observe(req.Task.String(), "network_error", elapsed.Seconds())
		logger.Error("request failed", logs.ErrorInfo(err))
		return gjson.Result{}, errors.Wrap(errors.KindNetwork, err, "request to "+url+" failed")
	}

	body := resp.Bytes()
	if resp.IsError() || resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		d.metrics.observe(req.Task.String(), "http_error", elapsed.Seconds())
		logger.Warn("provider returned error", logs.Int("status", resp.StatusCode()))
		return gjson.Result{}, errors.HTTP(resp.StatusCode(), string(body))
	}
	if !gjson.ValidBytes(body) {
		d.metrics.observe(req.Task.String(), "parse_error", elapsed.Seconds())
		return gjson.Result{}, errors.Newf(errors.KindParse, "provider returned invalid JSON (%d bytes)", len(body))
	}
	d.metrics.observe(req.Task.String(), "ok", elapsed.Seconds())
	logger.Info("request completed", logs.Int("status", resp.StatusCode()), logs.Duration("elapsed", elapsed))
	return gjson.ParseBytes(body), nil
}

// setMultipart 标量字段作为文本分片，文件字段以二进制分片上传
func setMultipart(r *resty.Request, t models.Task, body *models.RequestBody) ([]*os.File, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(errors.KindParse, err, "failed to encode request body")
	}
	fields := make(map[string]string)
	gjson.ParseBytes(data).ForEach(func(key, value gjson.Result) bool {
		if value.IsObject() {
			return true
		}
		fields[key.String()] = value.String()
		return true
	})
	r.SetMultipartFormData(fields)

	media := "image"
	if t.Category() == models.Audio {
		media = "audio"
	}
	var files []*os.File
	for _, ff := range body.Files() {
		f, err := os.Open(ff.Path)
		if err != nil {
			for _, opened := range files {
				_ = opened.Close()
			}
			if os.IsNotExist(err) {
				return nil, errors.Newf(errors.KindNotFound, "%s file %s does not exist", ff.Name, ff.Path)
			}
			return nil, errors.Wrap(errors.KindConfig, err, "failed to open "+ff.Path)
		}
		files = append(files, f)
		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(ff.Path), "."))
		r.SetMultipartField(ff.Name, filepath.Base(ff.Path), media+"/"+ext, f)
	}
	return files, nil
}
