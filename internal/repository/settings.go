package repository

import (
	"context"
	"encoding/json"

	"github.com/jmoiron/sqlx"

	"github.com/therapii/api-server-go/internal/model"
)

type SettingsRepository interface {
	Get(ctx context.Context, key string) (*model.AdminSetting, error)
	Put(ctx context.Context, key string, value any) error
}

type settingsRepo struct {
	db *sqlx.DB
}

func NewSettingsRepository(db *sqlx.DB) SettingsRepository {
	return &settingsRepo{db: db}
}

func (r *settingsRepo) Get(ctx context.Context, key string) (*model.AdminSetting, error) {
	var setting model.AdminSetting
	err := r.db.GetContext(ctx, &setting, `SELECT * FROM admin_settings WHERE key = $1`, key)
	return HandleNotFound(&setting, err)
}

func (r *settingsRepo) Put(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO admin_settings (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, key, raw)
	return err
}

// DecodeSetting loads key into dest. It reports false when the setting is absent.
func DecodeSetting(ctx context.Context, repo SettingsRepository, key string, dest any) (bool, error) {
	setting, err := repo.Get(ctx, key)
	if err != nil || setting == nil {
		return false, err
	}
	if err := json.Unmarshal(setting.Value, dest); err != nil {
		return false, err
	}
	return true, nil
}
