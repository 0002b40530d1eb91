package alert

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("alert not found")

type Repository interface {
	Create(ctx context.Context, a *Alert) error
	GetByID(ctx context.Context, id uuid.UUID) (*Alert, error)
	List(ctx context.Context, f Filter) ([]*Alert, error)
	Acknowledge(ctx context.Context, id, by uuid.UUID, at time.Time) (*Alert, error)
	CountByStatus(ctx context.Context) (map[Status]int, error)
}
