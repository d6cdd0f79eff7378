package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/captionkeeper/internal/client/models"
)

// List fetches the "all" listing, optionally from a cursor.
func (a *App) List(ctx context.Context, args []string) error {
	return a.printState(a.feed.FetchPage(ctx, firstArg(args)))
}

// Trending fetches the trending listing, optionally from a cursor.
func (a *App) Trending(ctx context.Context, args []string) error {
	return a.printState(a.feed.FetchTrending(ctx, firstArg(args)))
}

// More appends the next page of the active listing.
func (a *App) More(ctx context.Context) error {
	before := a.feed.State()
	if before.Mode == models.FeedModeSearch {
		a.println("Use 'search <query> page=N' to page through results")
		return nil
	}
	if !before.HasMore {
		a.println("No more captions")
		return nil
	}
	return a.printState(a.feed.LoadMore(ctx))
}

// Search runs a search. A trailing page=N selects the result page.
func (a *App) Search(ctx context.Context, args []string) error {
	page := 1
	if n := len(args); n > 0 && strings.HasPrefix(args[n-1], "page=") {
		p, err := strconv.Atoi(strings.TrimPrefix(args[n-1], "page="))
		if err != nil || p < 1 {
			a.println("Invalid page:", args[n-1])
			return fmt.Errorf("invalid page %q", args[n-1])
		}
		page = p
		args = args[:n-1]
	}
	return a.printState(a.feed.Search(ctx, strings.Join(args, " "), page))
}

func (a *App) ClearSearch(ctx context.Context) error {
	return a.printState(a.feed.ClearSearch())
}

// View prints the filtered, sorted subset of the loaded captions without
// touching the network.
func (a *App) View(ctx context.Context, args []string) error {
	filter, err := parseViewArgs(args)
	if err != nil {
		a.println(err.Error())
		return err
	}

	items := a.feed.View(filter)
	if len(items) == 0 {
		a.println("Nothing matches")
		return nil
	}
	a.println(renderCaptions(items))
	return nil
}

func (a *App) Favorite(ctx context.Context, args []string) error {
	id := args[0]
	if err := a.feed.ToggleFavorite(ctx, id); err != nil {
		a.println("Could not toggle favorite:", describe(err))
		return err
	}

	for _, c := range a.feed.State().Items {
		if c.ID == id {
			state := "removed from favorites"
			if c.IsFavorite {
				state = "added to favorites"
			}
			a.println(fmt.Sprintf("%s %s (%d likes)", id, state, c.FavoriteCount))
			break
		}
	}
	return nil
}

// Add prompts for a new caption and creates it. An icon is either a local
// file, uploaded with the caption, or an http(s) link.
func (a *App) Add(ctx context.Context) error {
	captionText, err := GetMultiline(a.reader, "Enter caption text", a.out)
	if err != nil {
		return err
	}

	kind, err := getSimpleText(a.reader, "Type: background, image_icon or image_gif (default background)", a.out)
	if err != nil {
		return err
	}
	if kind == "" {
		kind = string(models.CaptionTypeBackground)
	}

	tags, err := GetTags(a.reader, "Tags (comma separated)", a.out)
	if err != nil {
		return err
	}

	color, err := getSimpleText(a.reader, "Color (e.g. #1e88e5, empty for none)", a.out)
	if err != nil {
		return err
	}

	draft := models.CaptionDraft{
		Text:        captionText,
		Tags:        tags,
		Color:       color,
		ColorTop:    color,
		ColorBottom: color,
		Type:        models.CaptionType(kind),
	}

	if draft.Type != models.CaptionTypeBackground {
		icon, err := getSimpleText(a.reader, "Icon file path or URL", a.out)
		if err != nil {
			return err
		}
		closeIcon, err := attachIcon(&draft, icon)
		if err != nil {
			a.println("Cannot use icon:", err.Error())
			return err
		}
		defer closeIcon()
	}

	private, err := getSimpleText(a.reader, "Private? (y/N)", a.out)
	if err != nil {
		return err
	}
	draft.IsPrivate = strings.EqualFold(private, "y") || strings.EqualFold(private, "yes")

	c, err := a.feed.AddCaption(ctx, draft)
	if err != nil {
		a.println("Could not add caption:", describe(err))
		return err
	}

	a.println("Created caption", c.ID)
	return nil
}

func (a *App) Delete(ctx context.Context, args []string) error {
	if err := a.feed.DeleteCaption(ctx, args[0]); err != nil {
		a.println("Could not delete caption:", describe(err))
		return err
	}
	a.println("Deleted", args[0])
	return nil
}

func (a *App) printState(st models.FeedState) error {
	if st.Err != nil {
		a.println("Error:", describe(st.Err))
	}
	if len(st.Items) == 0 {
		a.println("No captions")
	} else {
		a.println(renderCaptions(st.Items))
	}

	switch {
	case st.Mode == models.FeedModeSearch:
		pages := 1
		if st.PageSize > 0 {
			pages = (st.Total + st.PageSize - 1) / st.PageSize
		}
		a.println(fmt.Sprintf("Search %q: page %d of %d, %d results", st.Query, st.Page, max(pages, 1), st.Total))
	case st.HasMore:
		a.println(fmt.Sprintf("%d captions, type 'more' for the next page", len(st.Items)))
	default:
		a.println(fmt.Sprintf("%d captions, end of list", len(st.Items)))
	}
	return st.Err
}

// attachIcon sets the draft icon from a URL or a local file. The returned
// func closes the file.
func attachIcon(draft *models.CaptionDraft, icon string) (func(), error) {
	if icon == "" {
		return func() {}, errors.New("an icon is required for this caption type")
	}
	if strings.HasPrefix(icon, "http://") || strings.HasPrefix(icon, "https://") {
		draft.IconLink = icon
		return func() {}, nil
	}

	f, err := os.Open(icon)
	if err != nil {
		return nil, err
	}
	draft.Icon = &models.IconFile{Name: filepath.Base(icon), Content: f}
	return func() { _ = f.Close() }, nil
}

// parseViewArgs reads "[text...] [#tag...] [fav] [sort=newest|oldest|popular]".
func parseViewArgs(args []string) (models.ViewFilter, error) {
	var (
		filter models.ViewFilter
		words  []string
	)
	for _, arg := range args {
		switch {
		case arg == "fav":
			filter.FavoritesOnly = true
		case strings.HasPrefix(arg, "#") && len(arg) > 1:
			filter.Tags = append(filter.Tags, arg[1:])
		case strings.HasPrefix(arg, "sort="):
			order := models.SortOrder(strings.TrimPrefix(arg, "sort="))
			switch order {
			case models.SortNewest, models.SortOldest, models.SortPopular:
				filter.SortBy = order
			default:
				return models.ViewFilter{}, fmt.Errorf("unknown sort %q, use newest, oldest or popular", order)
			}
		default:
			words = append(words, arg)
		}
	}
	filter.Text = strings.Join(words, " ")
	return filter, nil
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
