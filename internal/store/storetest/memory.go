// Package storetest provides an in-memory store.Facade for tests.
package storetest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/deepscifi/guide/internal/store"
)

// Memory is a store.Facade over a fixed corpus.
type Memory struct {
	corpus store.Corpus

	// Err, when set, is returned by every read.
	Err error
	// Gate, when set, blocks every read until it is closed or receives.
	Gate chan struct{}

	mu    sync.Mutex
	calls atomic.Int64
}

// New returns a facade over c. The corpus must not be modified afterwards.
func New(c store.Corpus) *Memory {
	return &Memory{corpus: c}
}

// Demo returns a facade over store.DemoCorpus.
func Demo() *Memory {
	return New(store.DemoCorpus())
}

// Calls reports how many reads have been served.
func (m *Memory) Calls() int64 { return m.calls.Load() }

// Fail sets the error returned by every subsequent read.
func (m *Memory) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Err = err
}

func (m *Memory) enter(ctx context.Context) error {
	m.calls.Add(1)
	if m.Gate != nil {
		select {
		case <-m.Gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Err
}

func (m *Memory) SearchWorlds(ctx context.Context, keyword string, limit int) ([]store.World, error) {
	if err := m.enter(ctx); err != nil {
		return nil, err
	}
	kw := strings.ToLower(keyword)
	var out []store.World
	for _, w := range m.corpus.Worlds {
		if !w.IsActive {
			continue
		}
		if strings.Contains(strings.ToLower(w.Name), kw) || strings.Contains(strings.ToLower(w.Premise), kw) {
			out = append(out, w)
		}
	}
	sortWorlds(out, store.SortPopular)
	return head(out, limit), nil
}

func (m *Memory) GetWorld(ctx context.Context, id string) (store.World, error) {
	if err := m.enter(ctx); err != nil {
		return store.World{}, err
	}
	id, err := store.ParseID(id)
	if err != nil {
		return store.World{}, err
	}
	for _, w := range m.corpus.Worlds {
		if w.ID == id {
			return w, nil
		}
	}
	return store.World{}, store.ErrNotFound
}

func (m *Memory) ListWorlds(ctx context.Context, mode store.SortMode, limit int) ([]store.World, error) {
	if err := m.enter(ctx); err != nil {
		return nil, err
	}
	var out []store.World
	for _, w := range m.corpus.Worlds {
		if w.IsActive {
			out = append(out, w)
		}
	}
	sortWorlds(out, store.ParseSortMode(string(mode)))
	return head(out, limit), nil
}

func (m *Memory) WorldName(ctx context.Context, id string) (string, error) {
	w, err := m.GetWorld(ctx, id)
	if err != nil {
		return "", err
	}
	return w.Name, nil
}

func (m *Memory) ListStories(ctx context.Context, worldID string, limit int) ([]store.Story, error) {
	out, err := m.stories(ctx, worldID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ReactionCount != out[j].ReactionCount {
			return out[i].ReactionCount > out[j].ReactionCount
		}
		return out[i].ID < out[j].ID
	})
	return head(out, limit), nil
}

func (m *Memory) RecentStories(ctx context.Context, worldID string, limit int) ([]store.Story, error) {
	out, err := m.stories(ctx, worldID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return head(out, limit), nil
}

func (m *Memory) stories(ctx context.Context, worldID string) ([]store.Story, error) {
	if err := m.enter(ctx); err != nil {
		return nil, err
	}
	worldID, err := store.ParseID(worldID)
	if err != nil {
		return nil, err
	}
	var out []store.Story
	for _, s := range m.corpus.Stories {
		if s.WorldID == worldID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *Memory) GetStory(ctx context.Context, id string) (store.Story, error) {
	if err := m.enter(ctx); err != nil {
		return store.Story{}, err
	}
	id, err := store.ParseID(id)
	if err != nil {
		return store.Story{}, err
	}
	for _, s := range m.corpus.Stories {
		if s.ID == id {
			return s, nil
		}
	}
	return store.Story{}, store.ErrNotFound
}

func (m *Memory) ListDwellers(ctx context.Context, worldID string, limit int) ([]store.Dweller, error) {
	if err := m.enter(ctx); err != nil {
		return nil, err
	}
	worldID, err := store.ParseID(worldID)
	if err != nil {
		return nil, err
	}
	var out []store.Dweller
	for _, d := range m.corpus.Dwellers {
		if d.WorldID == worldID && d.IsActive {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].LastActionAt, out[j].LastActionAt
		switch {
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		case a != nil && b != nil && !a.Equal(*b):
			return a.After(*b)
		}
		return out[i].ID < out[j].ID
	})
	return head(out, limit), nil
}

func (m *Memory) GetDweller(ctx context.Context, id string) (store.Dweller, error) {
	if err := m.enter(ctx); err != nil {
		return store.Dweller{}, err
	}
	id, err := store.ParseID(id)
	if err != nil {
		return store.Dweller{}, err
	}
	for _, d := range m.corpus.Dwellers {
		if d.ID == id {
			return d, nil
		}
	}
	return store.Dweller{}, store.ErrNotFound
}

func (m *Memory) RecentActions(ctx context.Context, dwellerID string, limit int) ([]store.Action, error) {
	if err := m.enter(ctx); err != nil {
		return nil, err
	}
	dwellerID, err := store.ParseID(dwellerID)
	if err != nil {
		return nil, err
	}
	var out []store.Action
	for _, a := range m.corpus.Actions {
		if a.DwellerID == dwellerID {
			out = append(out, a)
		}
	}
	sortActions(out)
	return head(out, limit), nil
}

func (m *Memory) ListActivity(ctx context.Context, worldID string, limit int) ([]store.Action, error) {
	if err := m.enter(ctx); err != nil {
		return nil, err
	}
	worldID, err := store.ParseID(worldID)
	if err != nil {
		return nil, err
	}
	inWorld := make(map[string]bool)
	for _, d := range m.corpus.Dwellers {
		if d.WorldID == worldID {
			inWorld[d.ID] = true
		}
	}
	var out []store.Action
	for _, a := range m.corpus.Actions {
		if inWorld[a.DwellerID] {
			out = append(out, a)
		}
	}
	sortActions(out)
	return head(out, limit), nil
}

func (m *Memory) AggregateStats(ctx context.Context) (store.Stats, error) {
	if err := m.enter(ctx); err != nil {
		return store.Stats{}, err
	}
	var s store.Stats
	for _, w := range m.corpus.Worlds {
		if w.IsActive {
			s.WorldCount++
		}
		s.TotalFollowers += int64(w.FollowerCount)
	}
	for _, d := range m.corpus.Dwellers {
		if d.IsActive {
			s.DwellerCount++
		}
	}
	s.StoryCount = int64(len(m.corpus.Stories))
	return s, nil
}

func (m *Memory) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Err
}

func sortWorlds(ws []store.World, mode store.SortMode) {
	sort.SliceStable(ws, func(i, j int) bool {
		a, b := ws[i], ws[j]
		switch mode {
		case store.SortPopular:
			if a.FollowerCount != b.FollowerCount {
				return a.FollowerCount > b.FollowerCount
			}
		case store.SortActive:
			if !a.UpdatedAt.Equal(b.UpdatedAt) {
				return a.UpdatedAt.After(b.UpdatedAt)
			}
		default:
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.After(b.CreatedAt)
			}
		}
		return a.ID < b.ID
	})
}

func sortActions(as []store.Action) {
	sort.SliceStable(as, func(i, j int) bool {
		if !as[i].CreatedAt.Equal(as[j].CreatedAt) {
			return as[i].CreatedAt.After(as[j].CreatedAt)
		}
		return as[i].ID < as[j].ID
	})
}

func head[T any](xs []T, limit int) []T {
	limit = store.ClampLimit(limit, store.DefaultMaxLimit)
	if len(xs) > limit {
		return xs[:limit]
	}
	return xs
}

var _ store.Facade = (*Memory)(nil)
