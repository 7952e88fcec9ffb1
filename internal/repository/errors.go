package repository

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"studyhub/internal/model"
)

// notFound maps pgx.ErrNoRows onto the domain sentinel and leaves other errors alone.
func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, model.ErrNotFound)
	}
	return err
}
