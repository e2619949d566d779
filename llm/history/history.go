// Package history keeps the per-category conversation sessions of a process.
//
// A History is owned by whoever constructs it (the CLI keeps one per process,
// the shell and the HTTP facade share theirs across commands). It changes only
// through Append, Restore and Clear, each of which is atomic.
package history

import (
	"sync"

	"github.com/stardustagi/gptshell/libs/errors"
	"github.com/stardustagi/gptshell/llm/models"
)

type continuationMode int

const (
	modeNew continuationMode = iota
	modeLast
	modeIndex
)

// Continuation selects the session a new response is appended to.
type Continuation struct {
	mode  continuationMode
	index int
}

// NewSession starts a new conversation.
func NewSession() Continuation { return Continuation{mode: modeNew} }

// ContinueLast extends the most recently created session.
func ContinueLast() Continuation { return Continuation{mode: modeLast} }

// ContinueAt extends the session at index i.
func ContinueAt(i int) Continuation { return Continuation{mode: modeIndex, index: i} }

func (c Continuation) IsNew() bool { return c.mode == modeNew }

func (c Continuation) String() string {
	switch c.mode {
	case modeLast:
		return "last"
	case modeIndex:
		return "index"
	default:
		return "new"
	}
}

// Snapshot 按分类保存的会话副本
type Snapshot map[models.Category][]models.Session

type History struct {
	mu       sync.RWMutex
	sessions map[models.Category][]models.Session
}

func New() *History {
	return &History{sessions: make(map[models.Category][]models.Session)}
}

func checkCategory(c models.Category) error {
	if !c.Valid() {
		return errors.Newf(errors.KindConfig, "invalid category %d", int(c))
	}
	return nil
}

func outOfRange(c models.Category, i, n int) error {
	return errors.Newf(errors.KindValidation,
		"session index %d out of range: %s history has %d session(s)", i, c, n)
}

// Append 追加一条完整的响应
func (h *History) Append(c models.Category, r models.Response, cont Continuation) error {
	if err := checkCategory(c); err != nil {
		return err
	}
	r = r.Clone()

	h.mu.Lock()
	defer h.mu.Unlock()
	list := h.sessions[c]
	switch cont.mode {
	case modeLast:
		if len(list) == 0 {
			h.sessions[c] = append(list, models.Session{r})
			return nil
		}
		list[len(list)-1] = append(list[len(list)-1], r)
	case modeIndex:
		if cont.index < 0 || cont.index >= len(list) {
			return outOfRange(c, cont.index, len(list))
		}
		list[cont.index] = append(list[cont.index], r)
	default:
		h.sessions[c] = append(list, models.Session{r})
	}
	return nil
}

// Session returns a copy of the session cont would extend: nil for a new
// session or for ContinueLast on an empty category.
func (h *History) Session(c models.Category, cont Continuation) (models.Session, error) {
	if err := checkCategory(c); err != nil {
		return nil, err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	list := h.sessions[c]
	switch cont.mode {
	case modeLast:
		if len(list) == 0 {
			return nil, nil
		}
		return list[len(list)-1].Clone(), nil
	case modeIndex:
		if cont.index < 0 || cont.index >= len(list) {
			return nil, outOfRange(c, cont.index, len(list))
		}
		return list[cont.index].Clone(), nil
	default:
		return nil, nil
	}
}

func (h *History) Len(c models.Category) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[c])
}

// Snapshot 返回指定分类（默认全部）的深拷贝
func (h *History) Snapshot(categories ...models.Category) Snapshot {
	if len(categories) == 0 {
		categories = models.Categories()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(Snapshot, len(categories))
	for _, c := range categories {
		sessions := models.CloneSessions(h.sessions[c])
		if sessions == nil {
			sessions = []models.Session{}
		}
		out[c] = sessions
	}
	return out
}

// Restore replaces the targeted categories (default: all) with the
// snapshot's sessions. Unless overwrite is set, a non-empty target fails the
// whole call with a state error and nothing is changed.
func (h *History) Restore(snap Snapshot, overwrite bool, categories ...models.Category) error {
	if len(categories) == 0 {
		categories = models.Categories()
	}
	for _, c := range categories {
		if err := checkCategory(c); err != nil {
			return err
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if !overwrite {
		for _, c := range categories {
			if n := len(h.sessions[c]); n > 0 {
				return errors.Newf(errors.KindState,
					"the %s history in the current session is not empty (%d session(s)), use force to override it", c, n)
			}
		}
	}
	for _, c := range categories {
		h.sessions[c] = models.CloneSessions(snap[c])
	}
	return nil
}

// Clear 清空分类下的所有会话
func (h *History) Clear(categories ...models.Category) {
	if len(categories) == 0 {
		categories = models.Categories()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range categories {
		delete(h.sessions, c)
	}
}
