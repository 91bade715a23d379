package store

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// AppSettings is the single-row settings blob.
type AppSettings struct {
	ShowBrowserWindow bool `json:"showBrowserWindow"`
}

// DefaultAppSettings returns the settings applied on first run.
func DefaultAppSettings() AppSettings {
	return AppSettings{ShowBrowserWindow: true}
}

// GetAppSettings loads the settings row, seeding the default on first access.
func (s *Store) GetAppSettings(ctx context.Context) (AppSettings, error) {
	var data string
	err := s.db.QueryRowContext(ctx, "SELECT data FROM settings WHERE id = 1").Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		settings := DefaultAppSettings()
		if err := s.SetAppSettings(ctx, settings); err != nil {
			return AppSettings{}, err
		}
		return settings, nil
	}
	if err != nil {
		return AppSettings{}, errors.Wrap(err, "get settings")
	}
	var settings AppSettings
	if err := json.UnmarshalFromString(data, &settings); err != nil {
		return AppSettings{}, errors.Wrap(err, "decode settings")
	}
	return settings, nil
}

// SetAppSettings writes the settings row, replacing any previous value.
func (s *Store) SetAppSettings(ctx context.Context, settings AppSettings) error {
	data, err := json.MarshalToString(settings)
	if err != nil {
		return errors.Wrap(err, "encode settings")
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO settings (id, data) VALUES (1, ?) ON CONFLICT(id) DO UPDATE SET data = excluded.data", data)
	return errors.Wrap(err, "set settings")
}
