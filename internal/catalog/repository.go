package catalog

import (
	"context"

	"github.com/google/uuid"

	"github.com/hackgods/booking-engine/internal/apperror"
)

var ErrServiceNotFound = apperror.New(apperror.NotFound, "service not found")

type Reader interface {
	GetService(ctx context.Context, id uuid.UUID) (*Service, error)
}
