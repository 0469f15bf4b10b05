package scheduling

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const firestoreCollection = "citas"

// legacyStatuses maps the Spanish "estado" values of older documents.
var legacyStatuses = map[string]Status{
	"pendiente":  StatusPending,
	"confirmada": StatusConfirmed,
	"confirmado": StatusConfirmed,
	"cancelada":  StatusCancelled,
	"completada": StatusCompleted,
}

// FirestoreStore keeps appointments in the "citas" collection, one document
// per appointment.
type FirestoreStore struct {
	client *firestore.Client
	loc    *time.Location
}

func NewFirestoreStore(client *firestore.Client, loc *time.Location) *FirestoreStore {
	return &FirestoreStore{client: client, loc: loc}
}

func (s *FirestoreStore) col() *firestore.CollectionRef {
	return s.client.Collection(firestoreCollection)
}

func mapFirestoreError(err error) error {
	if err == nil {
		return nil
	}
	switch status.Code(err) {
	case codes.NotFound:
		return ErrNotFound
	case codes.PermissionDenied, codes.Unauthenticated:
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	return err
}

func (s *FirestoreStore) Create(ctx context.Context, a *Appointment) error {
	ref := s.col().NewDoc()
	s.stamp(a, ref.ID)
	_, err := ref.Create(ctx, toDoc(a, s.loc))
	return mapFirestoreError(err)
}

func (s *FirestoreStore) stamp(a *Appointment, id string) {
	a.ID = id
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
}

// CreateIfFree reads the slot and creates the document in one transaction, so
// a concurrent booking of the same slot forces a retry that sees it.
func (s *FirestoreStore) CreateIfFree(ctx context.Context, a *Appointment) error {
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		q := s.col().Where("date", "==", a.Date).Where("time", "==", a.Time)
		snaps, err := tx.Documents(q).GetAll()
		if err != nil {
			return err
		}
		for _, snap := range snaps {
			if existing := fromDoc(snap.Ref.ID, snap.Data(), s.loc); existing.Status != StatusCancelled {
				return ErrSlotTaken
			}
		}
		ref := s.col().NewDoc()
		s.stamp(a, ref.ID)
		return tx.Create(ref, toDoc(a, s.loc))
	})
	if errors.Is(err, ErrSlotTaken) {
		return ErrSlotTaken
	}
	return mapFirestoreError(err)
}

func (s *FirestoreStore) GetByID(ctx context.Context, id string) (*Appointment, error) {
	if id == "" || strings.Contains(id, "/") {
		return nil, ErrNotFound
	}
	snap, err := s.col().Doc(id).Get(ctx)
	if err != nil {
		return nil, mapFirestoreError(err)
	}
	return fromDoc(snap.Ref.ID, snap.Data(), s.loc), nil
}

func (s *FirestoreStore) query(ctx context.Context, q firestore.Query) ([]*Appointment, error) {
	iter := q.Documents(ctx)
	defer iter.Stop()
	var items []*Appointment
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, mapFirestoreError(err)
		}
		items = append(items, fromDoc(snap.Ref.ID, snap.Data(), s.loc))
	}
	return items, nil
}

func (s *FirestoreStore) ListByDate(ctx context.Context, date string) ([]*Appointment, error) {
	return s.query(ctx, s.col().Where("date", "==", date))
}

func (s *FirestoreStore) ListByTutor(ctx context.Context, tutorID string) ([]*Appointment, error) {
	items, err := s.query(ctx, s.col().Where("tutorId", "==", tutorID))
	if err != nil {
		return nil, err
	}
	slices.SortFunc(items, newestFirst)
	return items, nil
}

func (s *FirestoreStore) UpdateStatus(ctx context.Context, id string, st Status, updatedBy string) error {
	if id == "" || strings.Contains(id, "/") {
		return ErrNotFound
	}
	_, err := s.col().Doc(id).Update(ctx, []firestore.Update{
		{Path: "status", Value: string(st)},
		{Path: "updatedBy", Value: updatedBy},
		{Path: "updatedAt", Value: firestore.ServerTimestamp},
	})
	return mapFirestoreError(err)
}

type fieldFilter struct {
	path  string
	value string
}

// serverFilters lists the equality filters Search pushes to Firestore. Status
// is not among them: legacy documents carry only "estado", which fromDoc
// normalises, so status is matched in process.
func serverFilters(f SearchFilter) []fieldFilter {
	var out []fieldFilter
	if f.Date != "" {
		out = append(out, fieldFilter{path: "date", value: f.Date})
	}
	return out
}

// Search narrows by date in Firestore and applies every filter in process.
func (s *FirestoreStore) Search(ctx context.Context, f SearchFilter, limit, offset int) ([]*Appointment, int, error) {
	q := s.col().Query
	for _, ff := range serverFilters(f) {
		q = q.Where(ff.path, "==", ff.value)
	}
	all, err := s.query(ctx, q)
	if err != nil {
		return nil, 0, err
	}
	var items []*Appointment
	for _, a := range all {
		if f.Matches(a) {
			items = append(items, a)
		}
	}
	slices.SortFunc(items, newestFirst)
	return page(items, limit, offset), len(items), nil
}

func toDoc(a *Appointment, loc *time.Location) map[string]interface{} {
	doc := map[string]interface{}{
		"tutorId":    a.TutorID,
		"tutorEmail": a.TutorEmail,
		"tutorName":  a.TutorName,
		"childId":    a.ChildID,
		"childName":  a.ChildName,
		"date":       a.Date,
		"time":       a.Time,
		"reason":     a.Reason,
		"notes":      a.Notes,
		"status":     string(a.Status),
		"createdAt":  a.CreatedAt,
		"updatedAt":  a.UpdatedAt,
	}
	if at, err := time.ParseInLocation(DateLayout+" "+TimeLayout, a.Date+" "+a.Time, loc); err == nil {
		doc["fecha"] = at
	}
	return doc
}

// fromDoc decodes a "citas" document. Older documents may only carry the
// "fecha" timestamp and a Spanish "estado".
func fromDoc(id string, data map[string]interface{}, loc *time.Location) *Appointment {
	str := func(key string) string {
		v, _ := data[key].(string)
		return v
	}
	ts := func(key string) time.Time {
		v, _ := data[key].(time.Time)
		return v
	}

	a := &Appointment{
		ID:         id,
		TutorID:    str("tutorId"),
		TutorEmail: str("tutorEmail"),
		TutorName:  str("tutorName"),
		ChildID:    str("childId"),
		ChildName:  str("childName"),
		Date:       str("date"),
		Time:       str("time"),
		Reason:     str("reason"),
		Notes:      str("notes"),
		Status:     Status(str("status")),
		UpdatedBy:  str("updatedBy"),
		CreatedAt:  ts("createdAt"),
		UpdatedAt:  ts("updatedAt"),
	}
	if a.TutorName == "" {
		a.TutorName = a.TutorEmail
	}
	if len(a.Time) > 5 {
		a.Time = a.Time[:5]
	}

	if fecha := ts("fecha"); !fecha.IsZero() {
		local := fecha.In(loc)
		if a.Date == "" {
			a.Date = local.Format(DateLayout)
		}
		if a.Time == "" {
			a.Time = local.Format(TimeLayout)
		}
	}

	if !a.Status.Valid() {
		estado := strings.ToLower(str("estado"))
		if st, ok := legacyStatuses[estado]; ok {
			a.Status = st
		} else if Status(estado).Valid() {
			a.Status = Status(estado)
		} else {
			a.Status = StatusPending
		}
	}
	return a
}
