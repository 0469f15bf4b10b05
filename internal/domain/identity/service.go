package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dentalcare/clinic/internal/platform/auth"
	"github.com/dentalcare/clinic/internal/platform/db"
)

type Service struct {
	tutors   TutorRepository
	children ChildRepository
	tx       db.TxBeginner
	loc      *time.Location
	now      func() time.Time
	logger   zerolog.Logger
}

// NewService wires the identity service. tx may be nil, in which case
// multi-step writes run without a transaction.
func NewService(tutors TutorRepository, children ChildRepository, tx db.TxBeginner, loc *time.Location, logger zerolog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{tutors: tutors, children: children, tx: tx, loc: loc, now: time.Now, logger: logger}
}

func (s *Service) today() time.Time {
	return s.now().In(s.loc)
}

// Today returns the current instant in the clinic's zone.
func (s *Service) Today() time.Time {
	return s.today()
}

func (s *Service) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.tx == nil {
		return fn(ctx)
	}
	return db.WithTx(ctx, s.tx, fn)
}

// -- Tutor --

// ProfileInput is the first-login form: the tutor's own data plus any
// number of children.
type ProfileInput struct {
	TutorInput
	Children []ChildInput `json:"children"`
}

// CompleteProfile stores the tutor and creates the listed children in a
// single transaction.
func (s *Service) CompleteProfile(ctx context.Context, tutorID, email string, in ProfileInput) (*Profile, error) {
	if tutorID == "" {
		return nil, &ValidationError{Field: "id", Message: "is required"}
	}
	if strings.TrimSpace(email) == "" {
		return nil, &ValidationError{Field: "email", Message: "is required"}
	}
	in.TutorInput.normalize()
	if err := in.TutorInput.validate(); err != nil {
		return nil, err
	}
	today := s.today()
	for i := range in.Children {
		in.Children[i].normalize()
		if err := in.Children[i].validate(today); err != nil {
			var verr *ValidationError
			if errors.As(err, &verr) {
				verr.Field = fmt.Sprintf("children[%d].%s", i, verr.Field)
			}
			return nil, err
		}
	}

	t := &Tutor{
		ID:              tutorID,
		Email:           strings.ToLower(strings.TrimSpace(email)),
		FirstName:       in.FirstName,
		PaternalSurname: in.PaternalSurname,
		MaternalSurname: in.MaternalSurname,
		Phone:           in.Phone,
		Role:            auth.RoleTutor,
		ProfileComplete: true,
	}
	profile := &Profile{Tutor: t, Children: []*Child{}}
	err := s.inTx(ctx, func(ctx context.Context) error {
		if err := s.tutors.Upsert(ctx, t); err != nil {
			return err
		}
		for _, ci := range in.Children {
			c := &Child{TutorID: tutorID}
			ci.apply(c)
			if err := s.children.Create(ctx, c); err != nil {
				return err
			}
			profile.Children = append(profile.Children, c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("tutor_id", tutorID).Int("children", len(profile.Children)).Msg("tutor profile completed")
	return profile, nil
}

func (s *Service) GetTutor(ctx context.Context, tutorID string) (*Tutor, error) {
	return s.tutors.GetByID(ctx, tutorID)
}

// GetProfile returns the tutor and their children. A signed-in user with no
// stored profile gets an empty, incomplete one so the client can prompt for it.
func (s *Service) GetProfile(ctx context.Context, tutorID, email string) (*Profile, error) {
	t, err := s.tutors.GetByID(ctx, tutorID)
	if errors.Is(err, ErrNotFound) {
		return &Profile{
			Tutor:    &Tutor{ID: tutorID, Email: email, Role: auth.RoleTutor},
			Children: []*Child{},
		}, nil
	}
	if err != nil {
		return nil, err
	}
	children, err := s.ListChildren(ctx, tutorID)
	if err != nil {
		return nil, err
	}
	return &Profile{Tutor: t, Children: children}, nil
}

func (s *Service) UpdateTutor(ctx context.Context, tutorID string, in TutorInput) (*Tutor, error) {
	in.normalize()
	if err := in.validate(); err != nil {
		return nil, err
	}
	t, err := s.tutors.GetByID(ctx, tutorID)
	if err != nil {
		return nil, err
	}
	t.FirstName = in.FirstName
	t.PaternalSurname = in.PaternalSurname
	t.MaternalSurname = in.MaternalSurname
	t.Phone = in.Phone
	t.ProfileComplete = true
	if err := s.tutors.Update(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// TutorName returns the tutor's display name.
func (s *Service) TutorName(ctx context.Context, tutorID string) (string, error) {
	t, err := s.tutors.GetByID(ctx, tutorID)
	if err != nil {
		return "", err
	}
	return t.FullName(), nil
}

// -- Children --

func (s *Service) ListChildren(ctx context.Context, tutorID string) ([]*Child, error) {
	children, err := s.children.ListByTutor(ctx, tutorID)
	if err != nil {
		return nil, err
	}
	if children == nil {
		children = []*Child{}
	}
	return children, nil
}

func (s *Service) AddChild(ctx context.Context, tutorID string, in ChildInput) (*Child, error) {
	in.normalize()
	if err := in.validate(s.today()); err != nil {
		return nil, err
	}
	if _, err := s.tutors.GetByID(ctx, tutorID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrProfileIncomplete
		}
		return nil, err
	}
	c := &Child{TutorID: tutorID}
	in.apply(c)
	if err := s.children.Create(ctx, c); err != nil {
		return nil, err
	}
	s.logger.Info().Str("tutor_id", tutorID).Str("child_id", c.ID.String()).Msg("child added")
	return c, nil
}

// GetChild returns the child only when it belongs to tutorID. A malformed id
// or another tutor's child both read as ErrNotFound.
func (s *Service) GetChild(ctx context.Context, tutorID, childID string) (*Child, error) {
	id, err := uuid.Parse(childID)
	if err != nil {
		return nil, ErrNotFound
	}
	c, err := s.children.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.TutorID != tutorID {
		return nil, ErrNotFound
	}
	return c, nil
}

func (s *Service) UpdateChild(ctx context.Context, tutorID, childID string, in ChildInput) (*Child, error) {
	in.normalize()
	if err := in.validate(s.today()); err != nil {
		return nil, err
	}
	c, err := s.GetChild(ctx, tutorID, childID)
	if err != nil {
		return nil, err
	}
	in.apply(c)
	if err := s.children.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) DeleteChild(ctx context.Context, tutorID, childID string) error {
	c, err := s.GetChild(ctx, tutorID, childID)
	if err != nil {
		return err
	}
	if err := s.children.Delete(ctx, c.ID); err != nil {
		return err
	}
	s.logger.Info().Str("tutor_id", tutorID).Str("child_id", childID).Msg("child deleted")
	return nil
}

// ChildName returns the display name of one of the tutor's children.
func (s *Service) ChildName(ctx context.Context, tutorID, childID string) (string, error) {
	c, err := s.GetChild(ctx, tutorID, childID)
	if err != nil {
		return "", err
	}
	return c.FullName(), nil
}
