package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/captionkeeper/internal/client/models"
	"github.com/dmitrijs2005/captionkeeper/internal/common"
)

const favoriteCommitTimeout = 30 * time.Second

// pendingToggle is a debounced favorite change for one caption. prior is
// the state before the first toggle of the burst and is what a failed
// commit restores. queued marks a burst whose quiet period ended while an
// earlier commit of the same caption was still running.
type pendingToggle struct {
	priorFav   bool
	priorCount int
	desired    bool
	userID     string
	timer      *time.Timer
	queued     bool
}

// ToggleFavorite flips the favorite state of caption id.
//
// Anonymous viewers toggle a local set and the favorite count is left
// alone. For signed-in viewers the change is applied optimistically, with
// the count adjusted by one, and sent to the server once toggles of the
// same caption have been quiet for the debounce interval. Only the last
// requested state is sent. A rejected commit restores the prior state
// exactly and is reported to OnFavoriteError.
func (f *CaptionFeed) ToggleFavorite(ctx context.Context, id string) error {
	if f.viewer.AccessToken(ctx) == "" {
		return f.toggleLocal(ctx, id)
	}
	user := f.viewer.CurrentUser(ctx)
	if user == nil {
		return fmt.Errorf("%w: %w", common.ErrFavorite, common.ErrNotAuthenticated)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	c, ok := f.findLocked(id)
	if !ok {
		return fmt.Errorf("%w: caption %s: %w", common.ErrFavorite, id, common.ErrNotFound)
	}

	p := f.pending[id]
	if p == nil {
		p = &pendingToggle{priorFav: c.IsFavorite, priorCount: c.FavoriteCount, userID: user.ID}
		f.pending[id] = p
	} else {
		p.timer.Stop()
		p.queued = false
	}

	desired := !c.IsFavorite
	p.desired = desired
	f.updateLocked(id, func(c *models.Caption) {
		c.IsFavorite = desired
		if desired {
			c.FavoriteCount++
		} else {
			c.FavoriteCount--
		}
	})

	p.timer = time.AfterFunc(f.debounce, func() {
		_ = f.commitToggle(id, p)
	})
	return nil
}

// Flush commits every pending favorite change now and waits for commits
// already under way. It returns the failures, joined.
func (f *CaptionFeed) Flush(ctx context.Context) error {
	f.mu.Lock()
	f.waitIdleLocked()
	batch := make(map[string]*pendingToggle, len(f.pending))
	for id, p := range f.pending {
		p.timer.Stop()
		batch[id] = p
	}
	f.mu.Unlock()

	var errs []error
	for id, p := range batch {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := f.commitToggle(id, p); err != nil {
			errs = append(errs, err)
		}
	}

	f.mu.Lock()
	f.waitIdleLocked()
	f.mu.Unlock()

	return errors.Join(errs...)
}

func (f *CaptionFeed) waitIdleLocked() {
	for f.inflight > 0 {
		f.idle.Wait()
	}
}

// commitToggle sends burst p of caption id. Commits of one caption never
// overlap: a burst that becomes due while another commit of the caption
// runs is queued, and the running commit sends it once it has settled, so
// a failure always hands its rollback point to the next burst.
func (f *CaptionFeed) commitToggle(id string, p *pendingToggle) error {
	f.mu.Lock()
	if f.pending[id] != p {
		// Already committed, superseded or deleted.
		f.mu.Unlock()
		return nil
	}
	p.timer.Stop()
	if f.committing[id] {
		p.queued = true
		f.mu.Unlock()
		return nil
	}
	f.committing[id] = true
	f.inflight++

	var errs []error
	for p != nil {
		delete(f.pending, id)
		f.mu.Unlock()

		if err := f.sendToggle(id, p); err != nil {
			errs = append(errs, err)
		}

		f.mu.Lock()
		p = nil
		if next := f.pending[id]; next != nil && next.queued {
			p = next
			p.timer.Stop()
		}
	}

	delete(f.committing, id)
	f.inflight--
	if f.inflight == 0 {
		f.idle.Broadcast()
	}
	f.mu.Unlock()

	return errors.Join(errs...)
}

func (f *CaptionFeed) sendToggle(id string, p *pendingToggle) error {
	if p.desired == p.priorFav {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), favoriteCommitTimeout)
	defer cancel()

	var err error
	token := f.viewer.AccessToken(ctx)
	switch {
	case token == "":
		err = common.ErrNotAuthenticated
	case p.desired:
		err = f.api.AddFavorite(withToken(ctx, token), p.userID, id)
	default:
		err = f.api.RemoveFavorite(withToken(ctx, token), p.userID, id)
	}
	if err == nil {
		f.log.Debug(ctx, "favorite committed", "id", id, "favorite", p.desired)
		return nil
	}

	f.mu.Lock()
	if next := f.pending[id]; next != nil {
		// A newer burst started from our optimistic state; it now owns the
		// rollback point.
		next.priorFav, next.priorCount = p.priorFav, p.priorCount
	} else {
		f.updateLocked(id, func(c *models.Caption) {
			c.IsFavorite = p.priorFav
			c.FavoriteCount = p.priorCount
		})
	}
	f.mu.Unlock()

	err = fmt.Errorf("%w: caption %s: %w", common.ErrFavorite, id, err)
	f.log.Warn(ctx, "favorite rolled back", "id", id, "error", err)
	if f.onFavErr != nil {
		f.onFavErr(id, err)
	}
	return err
}

func (f *CaptionFeed) toggleLocal(ctx context.Context, id string) error {
	fav, err := f.local.Toggle(ctx, id)
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrFavorite, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateLocked(id, func(c *models.Caption) {
		c.IsFavorite = fav
	})
	return nil
}
