package services

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/dmitrijs2005/captionkeeper/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/captionkeeper/internal/common"
)

// LocalFavorites is the favorite set of an anonymous viewer. It never
// reaches the server and is stored as a JSON array of caption ids under the
// localFavorites metadata key. A nil repository keeps it in memory only.
type LocalFavorites struct {
	repo metadata.Repository

	mu  sync.Mutex
	ids map[string]struct{}
}

// LoadLocalFavorites reads the persisted set. A corrupt value is treated as
// empty and overwritten by the next toggle.
func LoadLocalFavorites(ctx context.Context, repo metadata.Repository) (*LocalFavorites, error) {
	l := &LocalFavorites{repo: repo, ids: make(map[string]struct{})}
	if repo == nil {
		return l, nil
	}

	raw, err := repo.Get(ctx, common.LocalFavoritesKey)
	if err != nil {
		return nil, fmt.Errorf("load local favorites: %w", err)
	}
	if len(raw) == 0 {
		return l, nil
	}

	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return l, nil
	}
	for _, id := range ids {
		l.ids[id] = struct{}{}
	}
	return l, nil
}

// Toggle flips membership of id, persists the set and returns whether id is
// now a favorite. On a storage error the set is left unchanged.
func (l *LocalFavorites) Toggle(ctx context.Context, id string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, had := l.ids[id]
	if had {
		delete(l.ids, id)
	} else {
		l.ids[id] = struct{}{}
	}

	if err := l.persistLocked(ctx); err != nil {
		if had {
			l.ids[id] = struct{}{}
		} else {
			delete(l.ids, id)
		}
		return had, err
	}
	return !had, nil
}

func (l *LocalFavorites) Has(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.ids[id]
	return ok
}

// IDs returns the set in sorted order.
func (l *LocalFavorites) IDs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sortedLocked()
}

func (l *LocalFavorites) sortedLocked() []string {
	ids := make([]string, 0, len(l.ids))
	for id := range l.ids {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (l *LocalFavorites) persistLocked(ctx context.Context) error {
	if l.repo == nil {
		return nil
	}
	raw, err := json.Marshal(l.sortedLocked())
	if err != nil {
		return err
	}
	if err := l.repo.Set(ctx, common.LocalFavoritesKey, raw); err != nil {
		return fmt.Errorf("save local favorites: %w", err)
	}
	return nil
}
