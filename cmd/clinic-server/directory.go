package main

import (
	"context"
	"errors"

	"github.com/dentalcare/clinic/internal/domain/identity"
	"github.com/dentalcare/clinic/internal/domain/scheduling"
)

type profileNames interface {
	TutorName(ctx context.Context, tutorID string) (string, error)
	ChildName(ctx context.Context, tutorID, childID string) (string, error)
}

// directory lets the scheduling domain read names from identity profiles
// without importing it.
type directory struct {
	profiles profileNames
}

func newDirectory(p profileNames) scheduling.Directory {
	return directory{profiles: p}
}

func (d directory) TutorName(ctx context.Context, tutorID string) (string, error) {
	return d.profiles.TutorName(ctx, tutorID)
}

func (d directory) ChildName(ctx context.Context, tutorID, childID string) (string, error) {
	name, err := d.profiles.ChildName(ctx, tutorID, childID)
	if errors.Is(err, identity.ErrNotFound) {
		return "", scheduling.ErrUnknownChild
	}
	return name, err
}
