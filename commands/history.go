package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/stardustagi/gptshell/libs/errors"
	"github.com/stardustagi/gptshell/libs/logs"
	"github.com/stardustagi/gptshell/libs/redis"
	"github.com/stardustagi/gptshell/llm/history"
	"github.com/stardustagi/gptshell/llm/models"
)

// HistoryCommand history
type HistoryCommand struct {
	Category string `long:"category" description:"text, image, audio or all"`

	inv *invocation
}

func (c *HistoryCommand) Execute(_ []string) error {
	if err := c.inv.begin(); err != nil {
		return err
	}
	cats, err := models.ParseCategories(c.Category)
	if err != nil {
		return c.inv.fail(err)
	}
	snap := c.inv.rt.history.Snapshot(cats...)
	return c.inv.done(snap, func(w io.Writer) {
		printSnapshot(w, snap, cats)
	})
}

func printSnapshot(w io.Writer, snap history.Snapshot, cats []models.Category) {
	title := color.New(color.FgCyan, color.Bold)
	faint := color.New(color.Faint)
	for _, cat := range cats {
		sessions := snap[cat]
		title.Fprintf(w, "%s (%d sessions)\n", cat, len(sessions))
		for i, session := range sessions {
			fmt.Fprintf(w, "  [%d]\n", i)
			for _, r := range session {
				faint.Fprintf(w, "    %s ", r.Timestamp.Format("2006-01-02 15:04:05"))
				fmt.Fprintf(w, "> %s\n", r.Prompt)
				for _, b := range r.Body {
					fmt.Fprintf(w, "      %s\n", strings.ReplaceAll(b, "\n", "\n      "))
				}
			}
		}
	}
}

// StoreOptions 备份存储选择
type StoreOptions struct {
	Dir       string `long:"dir" description:"Backup directory (default from config)"`
	Redis     bool   `long:"redis" description:"Use redis instead of files"`
	RedisAddr string `long:"redis-addr" description:"Redis address (default from config)"`
}

// store returns the selected backup store and a release func. A configured
// redis address selects redis unless --dir is given.
func (inv *invocation) store(f StoreOptions) (history.Store, func(), error) {
	cfg := inv.rt.historyCfg
	addr := f.RedisAddr
	if addr == "" {
		addr = cfg.RedisAddr
	}
	useRedis := f.Redis || f.RedisAddr != "" || (f.Dir == "" && cfg.RedisAddr != "")
	if !useRedis {
		dir := f.Dir
		if dir == "" {
			dir = cfg.Dir
		}
		return history.NewFileStore(dir, nil), func() {}, nil
	}
	if addr == "" {
		return nil, nil, errors.New(errors.KindConfig, "no redis address: pass --redis-addr or set [history] redis_addr")
	}
	client := redis.NewClient(addr)
	view := redis.NewRedisView(client, cfg.RedisPrefix, logs.GetLogger("redis"))
	return history.NewRedisStore(view, nil, cfg.RedisTTL), func() { _ = client.Close() }, nil
}

// BackupCommand backup
type BackupCommand struct {
	Category string `long:"category" description:"text, image, audio or all"`
	Clear    bool   `long:"clear" description:"Clear the backed-up categories afterwards"`
	StoreOptions

	inv *invocation
}

func (c *BackupCommand) Execute(_ []string) error {
	if err := c.inv.begin(); err != nil {
		return err
	}
	cats, err := models.ParseCategories(c.Category)
	if err != nil {
		return c.inv.fail(err)
	}
	store, release, err := c.inv.store(c.StoreOptions)
	if err != nil {
		return c.inv.fail(err)
	}
	defer release()

	saved, err := c.inv.rt.history.Backup(c.inv.ctx, store, c.Clear, cats...)
	if err != nil {
		return c.inv.fail(err)
	}
	for cat, location := range saved {
		c.inv.rt.logger.Info("history backed up", logs.String("category", cat.String()), logs.String("location", location))
	}
	return c.inv.done(saved, func(w io.Writer) {
		if len(saved) == 0 {
			color.New(color.FgYellow).Fprintln(w, "Nothing to back up.")
			return
		}
		for _, cat := range models.Categories() {
			if location, ok := saved[cat]; ok {
				fmt.Fprintf(w, "%s -> %s\n", cat, location)
			}
		}
	})
}

// RestoreCommand restore
type RestoreCommand struct {
	From     string `long:"from" description:"Backup file or redis backup name"`
	Category string `long:"category" description:"Target category (default inferred from the backup name)"`
	Force    bool   `long:"force" short:"f" description:"Overwrite a non-empty category"`
	List     bool   `long:"list" description:"List the available backups"`
	StoreOptions

	inv *invocation
}

func (c *RestoreCommand) Execute(_ []string) error {
	if err := c.inv.begin(); err != nil {
		return err
	}
	store, release, err := c.inv.store(c.StoreOptions)
	if err != nil {
		return c.inv.fail(err)
	}
	defer release()

	if c.List {
		return c.list(store)
	}
	if c.From == "" {
		return c.inv.fail(errors.New(errors.KindValidation, "--from is required"))
	}
	cat := models.CategoryUnknown
	if c.Category != "" {
		if cat, err = models.ParseCategory(c.Category); err != nil {
			return c.inv.fail(err)
		}
	}
	cat, err = c.inv.rt.history.RestoreFrom(c.inv.ctx, store, c.From, cat, c.Force)
	if err != nil {
		return c.inv.fail(err)
	}
	n := c.inv.rt.history.Len(cat)
	return c.inv.done(map[string]interface{}{"category": cat, "sessions": n}, func(w io.Writer) {
		color.New(color.FgGreen).Fprintf(w, "Restored %d %s sessions from %s\n", n, cat, c.From)
	})
}

func (c *RestoreCommand) list(store history.Store) error {
	cats, err := models.ParseCategories(c.Category)
	if err != nil {
		return c.inv.fail(err)
	}
	var all []string
	for _, cat := range cats {
		names, err := store.List(c.inv.ctx, cat)
		if err != nil {
			return c.inv.fail(err)
		}
		all = append(all, names...)
	}
	return c.inv.done(all, func(w io.Writer) {
		for _, name := range all {
			fmt.Fprintln(w, name)
		}
	})
}
