package services

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/captionkeeper/internal/client/models"
	"github.com/dmitrijs2005/captionkeeper/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/captionkeeper/internal/common"
	"github.com/dmitrijs2005/captionkeeper/internal/dbx"
)

// TokenStore persists the session token pair between runs.
type TokenStore interface {
	Load(ctx context.Context) (models.Tokens, error)
	Save(ctx context.Context, tokens models.Tokens) error
	Clear(ctx context.Context) error
}

// SQLTokenStore keeps the pair in the local metadata table under the
// accessToken/refreshToken keys.
type SQLTokenStore struct {
	db *sql.DB
}

func NewSQLTokenStore(db *sql.DB) *SQLTokenStore {
	return &SQLTokenStore{db: db}
}

func (s *SQLTokenStore) Load(ctx context.Context) (models.Tokens, error) {
	repo := metadata.NewSQLiteRepository(s.db)

	access, err := repo.Get(ctx, common.AccessTokenKey)
	if err != nil {
		return models.Tokens{}, err
	}
	refresh, err := repo.Get(ctx, common.RefreshTokenKey)
	if err != nil {
		return models.Tokens{}, err
	}
	return models.Tokens{AccessToken: string(access), RefreshToken: string(refresh)}, nil
}

// Save writes both tokens in one transaction.
func (s *SQLTokenStore) Save(ctx context.Context, tokens models.Tokens) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := metadata.NewSQLiteRepository(tx)
		if err := repo.Set(ctx, common.AccessTokenKey, []byte(tokens.AccessToken)); err != nil {
			return err
		}
		return repo.Set(ctx, common.RefreshTokenKey, []byte(tokens.RefreshToken))
	})
}

// Clear drops the token pair and nothing else; local favorites survive.
func (s *SQLTokenStore) Clear(ctx context.Context) error {
	return metadata.NewSQLiteRepository(s.db).Delete(ctx, common.AccessTokenKey, common.RefreshTokenKey)
}
