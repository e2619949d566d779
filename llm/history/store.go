package history

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/stardustagi/gptshell/codec"
	"github.com/stardustagi/gptshell/libs/errors"
	"github.com/stardustagi/gptshell/libs/logs"
	"github.com/stardustagi/gptshell/libs/redis"
	"github.com/stardustagi/gptshell/llm/models"
	"github.com/stardustagi/gptshell/utils"
	"go.uber.org/zap"
)

// stampLayout 备份名中的时间部分，精确到分钟
const stampLayout = "2006-0102-15-04"

// Store persists one category's sessions outside the process.
type Store interface {
	// Save 写入备份，返回可传给 Load 的位置
	Save(ctx context.Context, c models.Category, sessions []models.Session) (string, error)
	Load(ctx context.Context, location string) ([]models.Session, error)
	// List 返回分类下已有的备份位置，按时间升序
	List(ctx context.Context, c models.Category) ([]string, error)
}

// BackupName labels a backup of c taken at t, e.g. GPT_2023-0415-09-30.
func BackupName(c models.Category, t time.Time) string {
	return c.Family() + "_" + t.Format(stampLayout)
}

// CategoryOf recovers the category from a backup location's family prefix.
func CategoryOf(location string) (models.Category, error) {
	base := filepath.Base(location)
	if i := strings.LastIndex(base, ":"); i >= 0 {
		base = base[i+1:]
	}
	family, _, ok := strings.Cut(base, "_")
	if !ok {
		return models.CategoryUnknown, errors.Newf(errors.KindValidation,
			"cannot infer category from backup %q", location)
	}
	return models.ParseCategory(family)
}

type FileStore struct {
	dir    string
	codec  codec.ICodec
	now    func() time.Time
	logger *zap.Logger
}

func NewFileStore(dir string, c codec.ICodec) *FileStore {
	if c == nil {
		c = codec.NewIndentedJsonCodec()
	}
	return &FileStore{dir: dir, codec: c, now: time.Now, logger: logs.GetLogger("history")}
}

func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) Save(_ context.Context, c models.Category, sessions []models.Session) (string, error) {
	data, err := s.codec.Encode(sessions)
	if err != nil {
		return "", err
	}
	path := filepath.Join(s.dir, BackupName(c, s.now())+".json")
	if err := utils.AtomicWriteFile(path, data, 0o600, 0o700); err != nil {
		return "", errors.Wrap(errors.KindConfig, err, "failed to write history backup")
	}
	s.logger.Info("history saved", logs.String("category", c.String()),
		logs.String("path", path), logs.Int("sessions", len(sessions)))
	return path, nil
}

// Load accepts a path or a bare backup name. A bare name that does not exist
// as given is looked up inside the store directory.
func (s *FileStore) Load(_ context.Context, location string) ([]models.Session, error) {
	path := location
	if !strings.ContainsRune(location, os.PathSeparator) && !utils.FileExists(location) {
		path = filepath.Join(s.dir, location)
		if filepath.Ext(path) == "" {
			path += ".json"
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Newf(errors.KindNotFound, "history backup %s does not exist", path)
		}
		return nil, errors.Wrap(errors.KindConfig, err, "failed to read history backup")
	}
	return s.codec.Decode(data)
}

func (s *FileStore) List(_ context.Context, c models.Category) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, c.Family()+"_*.json"))
	if err != nil {
		return nil, errors.Wrap(errors.KindConfig, err, "failed to list history backups")
	}
	sort.Strings(matches)
	return matches, nil
}

// RedisStore keeps backups under <prefix>:history:<name>.
type RedisStore struct {
	view   redis.RedisCli
	codec  codec.ICodec
	ttl    string
	now    func() time.Time
	logger *zap.Logger
}

// NewRedisStore ttl 为空表示永不过期
func NewRedisStore(view redis.RedisCli, c codec.ICodec, ttl string) *RedisStore {
	if c == nil {
		c = codec.NewJsonCodec()
	}
	return &RedisStore{view: view, codec: c, ttl: ttl, now: time.Now, logger: logs.GetLogger("history")}
}

func redisKey(name string) string { return "history:" + name }

func (s *RedisStore) Save(ctx context.Context, c models.Category, sessions []models.Session) (string, error) {
	data, err := s.codec.Encode(sessions)
	if err != nil {
		return "", err
	}
	key := redisKey(BackupName(c, s.now()))
	if err := s.view.Set(ctx, key, data, s.ttl); err != nil {
		return "", errors.Wrap(errors.KindNetwork, err, "failed to save history to redis")
	}
	s.logger.Info("history saved", logs.String("category", c.String()),
		logs.String("key", s.view.Key(key)), logs.Int("sessions", len(sessions)))
	return key, nil
}

func (s *RedisStore) Load(ctx context.Context, location string) ([]models.Session, error) {
	key := location
	if !strings.HasPrefix(key, "history:") {
		key = redisKey(key)
	}
	data, err := s.view.Get(ctx, key)
	if err == redis.Nil {
		return nil, errors.Newf(errors.KindNotFound, "history backup %s does not exist", s.view.Key(key))
	}
	if err != nil {
		return nil, errors.Wrap(errors.KindNetwork, err, "failed to load history from redis")
	}
	return s.codec.Decode(data)
}

func (s *RedisStore) List(ctx context.Context, c models.Category) ([]string, error) {
	keys, err := s.view.Scan(ctx, redisKey(c.Family()+"_*"))
	if err != nil {
		return nil, errors.Wrap(errors.KindNetwork, err, "failed to list history backups")
	}
	sort.Strings(keys)
	return keys, nil
}

// Backup saves each category (default: all) and, with clearAfter set, empties the
// categories that were saved. Empty categories are skipped.
func (h *History) Backup(ctx context.Context, s Store, clearAfter bool, categories ...models.Category) (map[models.Category]string, error) {
	snap := h.Snapshot(categories...)
	out := make(map[models.Category]string, len(snap))
	for _, c := range models.Categories() {
		sessions, ok := snap[c]
		if !ok || len(sessions) == 0 {
			continue
		}
		location, err := s.Save(ctx, c, sessions)
		if err != nil {
			return out, err
		}
		out[c] = location
		if clearAfter {
			h.Clear(c)
		}
	}
	return out, nil
}

// RestoreFrom loads a backup into category c, inferring c from the backup
// name when it is CategoryUnknown.
func (h *History) RestoreFrom(ctx context.Context, s Store, location string, c models.Category, overwrite bool) (models.Category, error) {
	if c == models.CategoryUnknown {
		var err error
		if c, err = CategoryOf(location); err != nil {
			return c, err
		}
	}
	sessions, err := s.Load(ctx, location)
	if err != nil {
		return c, err
	}
	return c, h.Restore(Snapshot{c: sessions}, overwrite, c)
}
