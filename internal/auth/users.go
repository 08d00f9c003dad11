package auth

import (
	"context"
	"fmt"

	"ms-salesreport/internal/database"
	"ms-salesreport/internal/models"

	"github.com/uptrace/bun"
)

// UserDB stores sellers.
type UserDB struct {
	Bun *bun.DB
}

func (d *UserDB) InsertUser(ctx context.Context, user *models.User) error {
	if _, err := d.Bun.NewInsert().Model(user).Exec(ctx); err != nil {
		return database.Classify(err, fmt.Sprintf("insert user %q", user.Username))
	}
	return nil
}

func (d *UserDB) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	user := new(models.User)
	err := d.Bun.NewSelect().Model(user).Where("username = ?", username).Scan(ctx)
	if err != nil {
		return nil, database.Classify(err, fmt.Sprintf("get user %q", username))
	}
	return user, nil
}
