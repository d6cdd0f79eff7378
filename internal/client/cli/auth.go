package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/captionkeeper/internal/client/client"
	"github.com/dmitrijs2005/captionkeeper/internal/client/models"
	"github.com/dmitrijs2005/captionkeeper/internal/common"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

// Register prompts for email, password and an optional captcha token, then
// creates the account and signs in.
//
// The password byte slice is wiped before returning.
func (a *App) Register(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}

	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	captcha, err := getSimpleText(a.reader, "Enter captcha token (empty if none)", a.out)
	if err != nil {
		return err
	}

	u, err := a.session.Register(ctx, email, string(password), captcha)
	if err != nil {
		a.println("Registration failed:", describe(err))
		return err
	}

	a.println("Welcome,", u.DisplayName())
	return nil
}

// Login prompts for credentials and signs in. A successful login reloads the
// feed so favorites reflect the account.
func (a *App) Login(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}

	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	u, err := a.session.Login(ctx, email, string(password), "")
	if err != nil {
		a.println("Login failed:", describe(err))
		return err
	}

	a.println("Signed in as", u.DisplayName())
	a.reload(ctx)
	return nil
}

// Google signs in with a Google OAuth access token obtained elsewhere.
func (a *App) Google(ctx context.Context) error {
	token, err := getSimpleText(a.reader, "Paste Google access token", a.out)
	if err != nil {
		return err
	}

	u, err := a.session.GoogleAuth(ctx, token)
	if err != nil {
		a.println("Google sign-in failed:", describe(err))
		return err
	}

	a.println("Signed in as", u.DisplayName())
	a.reload(ctx)
	return nil
}

// Logout sends pending favorite changes, then drops the session.
func (a *App) Logout(ctx context.Context) error {
	if err := a.feed.Flush(ctx); err != nil {
		a.log.Warn(ctx, "flush favorites before logout", "error", err)
	}
	a.session.Logout(ctx)
	a.println("Signed out")
	a.reload(ctx)
	return nil
}

func (a *App) WhoAmI(ctx context.Context) error {
	u := a.session.CurrentUser(ctx)
	if u == nil {
		a.println("Not signed in")
		return nil
	}

	a.println(renderTable(
		[]string{"Field", "Value"},
		[][]string{
			{"ID", u.ID},
			{"Email", u.Email},
			{"Username", u.Username},
			{"Verified", fmt.Sprint(u.IsVerified)},
			{"Posted", fmt.Sprint(u.PostedCount)},
			{"Favorites given", fmt.Sprint(u.FavoritesGiven)},
			{"Favorites received", fmt.Sprint(u.FavoritesReceived)},
			{"Session expires", u.ExpiresAt.Local().Format("2006-01-02 15:04:05")},
		},
		[]columnAlignment{alignLeft, alignLeft},
	))
	return nil
}

func (a *App) ChangeUsername(ctx context.Context) error {
	name, err := getSimpleText(a.reader, "Enter new username", a.out)
	if err != nil {
		return err
	}
	if name == "" {
		a.println("Username unchanged")
		return nil
	}

	u, err := a.session.ChangeUsername(ctx, name)
	if err != nil {
		a.println("Could not change username:", describe(err))
		return err
	}

	a.println("Username is now", u.Username)
	return nil
}

// reload refetches the active listing from the top, since favorites
// depend on the viewer.
func (a *App) reload(ctx context.Context) {
	if a.feed.State().Source == models.FeedSourceTrending {
		_ = a.Trending(ctx, nil)
		return
	}
	_ = a.List(ctx, nil)
}

// describe turns service errors into short user-facing text.
func describe(err error) string {
	switch {
	case errors.Is(err, common.ErrInvalidCredentials):
		return "invalid email or password"
	case errors.Is(err, common.ErrMethodNotAllowed):
		return "this account signs in with a different method"
	case errors.Is(err, common.ErrInvalidToken):
		return "the token was rejected"
	case errors.Is(err, common.ErrAccountNotFound):
		return "no account is linked to this identity"
	case errors.Is(err, common.ErrNotAuthenticated):
		return "please sign in first"
	case errors.Is(err, client.ErrUnavailable):
		return "server unavailable, try again later"
	case errors.Is(err, client.ErrConflict):
		return "already exists"
	case errors.Is(err, client.ErrRateLimited):
		return "too many requests, slow down"
	default:
		return err.Error()
	}
}
