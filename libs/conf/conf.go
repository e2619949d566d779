package conf

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/stardustagi/gptshell/libs/errors"
	"github.com/stardustagi/gptshell/utils"
)

const (
	AppName = "gptshell"

	// EnvConfig 配置文件路径环境变量
	EnvConfig = "GPTSHELL_CONFIG"
	// EnvAPIKeyPath overrides the default credential location.
	EnvAPIKeyPath = "OPENAI_APIKEY"
)

var (
	mu     sync.RWMutex
	config map[string]interface{}
)

type Global struct {
	AppName    string `json:"app_name"`
	AppVersion string `json:"app_version"`
}

type OpenAI struct {
	BaseURL        string   `json:"base_url"`
	CredentialPath string   `json:"credential_path"`
	Timeout        Duration `json:"timeout"`
	LockTimeout    Duration `json:"lock_timeout"`
}

type History struct {
	Dir         string `json:"dir"`
	RedisAddr   string `json:"redis_addr"`
	RedisPrefix string `json:"redis_prefix"`
	RedisTTL    string `json:"redis_ttl"`
}

type Server struct {
	Address string `json:"address"`
	Port    int    `json:"port"`
}

// Duration 支持 "5m" 形式的配置值
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var n int64
		if err := json.Unmarshal(b, &n); err != nil {
			return err
		}
		d.Duration = time.Duration(n)
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration.String())
}

// Init 加载 TOML 配置；path 为空时读取环境变量，文件不存在时使用默认值
func Init(path string) error {
	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	loaded := make(map[string]interface{})
	if path != "" {
		if _, err := toml.DecodeFile(path, &loaded); err != nil {
			if !os.IsNotExist(err) {
				return errors.Wrap(errors.KindConfig, err, "failed to load config "+path)
			}
		}
	}

	mu.Lock()
	config = loaded
	mu.Unlock()

	g := GetGlobal()
	os.Setenv("APP_NAME", g.AppName)
	os.Setenv("APP_VERSION", g.AppVersion)
	return nil
}

// Get 返回配置段的 JSON 编码
func Get(key string) []byte {
	mu.RLock()
	defer mu.RUnlock()
	if value, exists := config[key]; exists {
		bytes, err := json.Marshal(value)
		if err != nil {
			return nil
		}
		return bytes
	}
	return nil
}

// section decodes key over the supplied defaults.
func section[T any](key string, defaults T) (T, error) {
	raw := Get(key)
	if raw == nil {
		return defaults, nil
	}
	out := defaults
	if err := json.Unmarshal(raw, &out); err != nil {
		return defaults, errors.Wrap(errors.KindConfig, err, "invalid ["+key+"] section")
	}
	return out, nil
}

// DataDir 应用数据目录，默认在用户配置目录下
func DataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, AppName)
}

// DefaultCredentialPath honours $OPENAI_APIKEY before the data directory.
func DefaultCredentialPath() string {
	if p := os.Getenv(EnvAPIKeyPath); p != "" {
		return p
	}
	return filepath.Join(DataDir(), "API.key")
}

func DefaultHistoryDir() string {
	return filepath.Join(DataDir(), "SessionHistory")
}

func GetGlobal() Global {
	g, _ := section("global", Global{AppName: AppName, AppVersion: "dev"})
	return g
}

func GetOpenAI() (OpenAI, error) {
	return section("openai", OpenAI{
		BaseURL:        "https://api.openai.com/v1",
		CredentialPath: DefaultCredentialPath(),
		Timeout:        Duration{5 * time.Minute},
		LockTimeout:    Duration{100 * time.Millisecond},
	})
}

func GetHistory() (History, error) {
	return section("history", History{
		Dir:         DefaultHistoryDir(),
		RedisPrefix: AppName,
	})
}

func GetServer() (Server, error) {
	return section("server", Server{Address: "127.0.0.1", Port: 8080})
}

// GetLog returns the [log] section as bytes for logs.Init, with the file
// placed under the data directory unless configured.
func GetLog() []byte {
	defaults := map[string]interface{}{
		"filename":   filepath.Join(DataDir(), "logs", AppName+".log"),
		"maxsize":    20,
		"maxbackups": 3,
		"maxage":     7,
		"compress":   true,
		"level":      0,
	}
	if raw := Get("log"); raw != nil {
		if custom, err := utils.Bytes2Struct[map[string]interface{}](raw); err == nil {
			for k, v := range custom {
				defaults[k] = v
			}
		}
	}
	out, _ := json.Marshal(defaults)
	return out
}
