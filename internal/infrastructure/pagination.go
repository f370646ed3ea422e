package infrastructure

import (
	"context"

	"github.com/sirupsen/logrus"
)

// collectPages calls fetch with successive page tokens, starting from the
// empty token, until a page comes back without a next token. The context is
// checked before each page.
func collectPages[T any](ctx context.Context, log *logrus.Entry, fetch func(pageToken string) ([]T, string, error)) ([]T, error) {
	var items []T
	pageToken := ""
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		batch, next, err := fetch(pageToken)
		if err != nil {
			return nil, err
		}
		items = append(items, batch...)

		log.WithFields(logrus.Fields{
			"page":  page,
			"count": len(batch),
		}).Debug("Fetched page")

		if next == "" {
			return items, nil
		}
		pageToken = next
	}
}
