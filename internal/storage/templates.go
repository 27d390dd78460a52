package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"coinalerts/internal/errs"
	"coinalerts/internal/notify"
)

const getTemplateSQL = `SELECT id, channel, code, subject, content
FROM message_templates
WHERE channel = $1 AND code = $2;`

// TemplateStore resolves message templates by channel and code.
type TemplateStore interface {
	GetTemplate(ctx context.Context, channel notify.Channel, code string) (Template, error)
}

// GetTemplate fetches one template from durable storage.
func (s *Store) GetTemplate(ctx context.Context, channel notify.Channel, code string) (Template, error) {
	pool, err := s.getPool()
	if err != nil {
		return Template{}, err
	}

	var (
		tpl        Template
		channelStr string
	)
	scanErr := pool.QueryRow(ctx, getTemplateSQL, string(channel), code).
		Scan(&tpl.ID, &channelStr, &tpl.Code, &tpl.Subject, &tpl.Content)
	if errors.Is(scanErr, pgx.ErrNoRows) {
		return Template{}, errs.NotFound("template %s/%s", channel, code)
	}
	if scanErr != nil {
		return Template{}, fmt.Errorf("get template: %w", scanErr)
	}
	tpl.Channel = notify.Channel(channelStr)
	return tpl, nil
}

var _ TemplateStore = (*Store)(nil)
