package adminops

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/consultease/central/internal/audit"
	"github.com/consultease/central/internal/persistence"
)

// StudentOps provides student CRUD operations for the admin dashboard.
type StudentOps struct {
	store  *persistence.StudentStore
	audit  *audit.Writer
	logger *slog.Logger
}

func NewStudentOps(store *persistence.StudentStore, auditWriter *audit.Writer, logger *slog.Logger) *StudentOps {
	return &StudentOps{store: store, audit: auditWriter, logger: logger}
}

type CreateStudentParams struct {
	RFIDUID    string
	Name       string
	Department string
	ActorID    int64
}

func (o *StudentOps) Create(ctx context.Context, p CreateStudentParams) (persistence.Student, error) {
	s, err := o.store.Create(ctx, persistence.StudentCreateParams{
		RFIDUID: p.RFIDUID, Name: p.Name, Department: p.Department,
	})
	if err != nil {
		return persistence.Student{}, err
	}
	o.audit.Log(fmt.Sprintf("admin:%d", p.ActorID), "student_created", fmt.Sprintf("student:%d", s.ID), nil)
	return s, nil
}

type UpdateStudentParams struct {
	ID         int64
	Name       string
	Department string
	ActorID    int64
}

func (o *StudentOps) Update(ctx context.Context, p UpdateStudentParams) (persistence.Student, error) {
	s, err := o.store.Update(ctx, persistence.StudentUpdateParams{
		ID: p.ID, Name: p.Name, Department: p.Department,
	})
	if err != nil {
		return persistence.Student{}, err
	}
	o.audit.Log(fmt.Sprintf("admin:%d", p.ActorID), "student_updated", fmt.Sprintf("student:%d", s.ID), nil)
	return s, nil
}

func (o *StudentOps) SetActive(ctx context.Context, id int64, active bool, actorID int64) (persistence.Student, error) {
	s, err := o.store.SetActive(ctx, id, active)
	if err != nil {
		return persistence.Student{}, err
	}
	action := "student_deactivated"
	if active {
		action = "student_activated"
	}
	o.audit.Log(fmt.Sprintf("admin:%d", actorID), action, fmt.Sprintf("student:%d", id), nil)
	return s, nil
}

func (o *StudentOps) List(ctx context.Context) ([]persistence.Student, error) {
	return o.store.List(ctx)
}

func (o *StudentOps) Get(ctx context.Context, id int64) (persistence.Student, error) {
	return o.store.GetByID(ctx, id)
}
