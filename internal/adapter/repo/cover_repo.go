package repo

import (
	"context"

	"stylebff/internal/infra"
	"stylebff/internal/sqlinline"
)

// CoverIndexPG implements domain.CoverIndex over outfit_covers.
type CoverIndexPG struct {
	sql infra.SQLExecutor
}

func NewCoverIndex(sql infra.SQLExecutor) *CoverIndexPG {
	return &CoverIndexPG{sql: sql}
}

// CurrentCover returns the stored object key, or "" when the entity has none.
func (r *CoverIndexPG) CurrentCover(ctx context.Context, entityID string) (string, error) {
	var key string
	if err := r.sql.QueryRow(ctx, sqlinline.QSelectCover, entityID).Scan(&key); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", err
	}
	return key, nil
}

func (r *CoverIndexPG) SetCover(ctx context.Context, entityID, key, url string) error {
	_, err := r.sql.Exec(ctx, sqlinline.QUpsertCover, entityID, key, url)
	return err
}
