package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/elimuhub/elimu/core"
	"github.com/elimuhub/elimu/core/course"
)

const courseCols = "id, title, slug, description, price, image, status, is_featured, instructor_id, category_id, review_note, created_at, updated_at"

var courseSortFields = map[string]bool{
	"title":       true,
	"slug":        true,
	"price":       true,
	"status":      true,
	"is_featured": true,
	"created_at":  true,
	"updated_at":  true,
}

type courseRepository struct {
	db *sqlx.DB
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *sql.DB) *courseRepository {
	return &courseRepository{db: sqlx.NewDb(db, "postgres")}
}

type courseRow struct {
	ID           string          `db:"id"`
	Title        string          `db:"title"`
	Slug         string          `db:"slug"`
	Description  string          `db:"description"`
	Price        decimal.Decimal `db:"price"`
	Image        string          `db:"image"`
	Status       string          `db:"status"`
	IsFeatured   bool            `db:"is_featured"`
	InstructorID string          `db:"instructor_id"`
	CategoryID   null.String     `db:"category_id"`
	ReviewNote   null.String     `db:"review_note"`
	CreatedAt    time.Time       `db:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at"`
}

func (repo courseRepository) toRow(crs course.Course) courseRow {
	return courseRow{
		ID:           crs.ID,
		Title:        crs.Title,
		Slug:         crs.Slug,
		Description:  crs.Description,
		Price:        crs.Price,
		Image:        crs.Image,
		Status:       string(crs.Status),
		IsFeatured:   crs.IsFeatured,
		InstructorID: crs.InstructorID,
		CategoryID:   crs.CategoryID,
		ReviewNote:   crs.ReviewNote,
		CreatedAt:    crs.CreatedAt.UTC(),
		UpdatedAt:    crs.UpdatedAt.UTC(),
	}
}

func (repo courseRepository) fromRow(r courseRow) course.Course {
	return course.Course{
		ID:           r.ID,
		Title:        r.Title,
		Slug:         r.Slug,
		Description:  r.Description,
		Price:        r.Price,
		Image:        r.Image,
		Status:       course.Status(r.Status),
		IsFeatured:   r.IsFeatured,
		InstructorID: r.InstructorID,
		CategoryID:   r.CategoryID,
		ReviewNote:   r.ReviewNote,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func (repo courseRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return course.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo courseRepository) CheckSlugUniqueness(ctx context.Context, slg string, excludedCourses ...course.Course) error {
	query := "SELECT EXISTS (SELECT 1 FROM courses WHERE slug = $1"
	args := []interface{}{slg}
	if len(excludedCourses) > 0 {
		ids := make([]string, 0, len(excludedCourses))
		for _, c := range excludedCourses {
			ids = append(ids, c.ID)
		}
		query += " AND id <> ALL($2)"
		args = append(args, pq.Array(ids))
	}
	query += ")"

	var exists bool
	if err := repo.db.GetContext(ctx, &exists, query, args...); err != nil {
		return errors.Wrap(err, "checking slug uniqueness")
	}
	if exists {
		return course.ErrSlugExists
	}
	return nil
}

func (repo courseRepository) CreateCourse(ctx context.Context, crs course.Course) (course.Course, error) {
	crs.ID = uuid.New().String()
	r := repo.toRow(crs)

	query := `
		INSERT INTO courses (` + courseCols + `)
		VALUES (:id, :title, :slug, :description, :price, :image, :status, :is_featured, :instructor_id, :category_id, :review_note, :created_at, :updated_at)`
	if _, err := repo.db.NamedExecContext(ctx, query, r); err != nil {
		return course.Course{}, errors.Wrap(err, "inserting course")
	}
	return repo.fromRow(r), nil
}

func (repo courseRepository) GetCourse(ctx context.Context, filter course.GetFilter) (course.Course, error) {
	var (
		query string
		args  []interface{}
	)

	switch {
	case filter.ID != "":
		if _, err := uuid.Parse(filter.ID); err != nil {
			return course.Course{}, course.ErrNotFound
		}
		query = "SELECT " + courseCols + " FROM courses WHERE id = $1"
		args = []interface{}{filter.ID}
	case filter.Slug != "":
		query = "SELECT " + courseCols + " FROM courses WHERE slug = $1"
		args = []interface{}{filter.Slug}
	default:
		return course.Course{}, course.ErrNotFound
	}

	var r courseRow
	if err := repo.db.GetContext(ctx, &r, query, args...); err != nil {
		return course.Course{}, repo.trapNoRowsErr(err, "finding course")
	}
	return repo.fromRow(r), nil
}

func (repo courseRepository) QueryCourses(ctx context.Context, filter *course.QueryFilter, ordering []core.DBOrdering) ([]course.Course, error) {
	var (
		conds []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter != nil {
		if filter.Search != "" {
			p := arg("%" + filter.Search + "%")
			conds = append(conds, fmt.Sprintf("(title ILIKE %[1]s OR description ILIKE %[1]s)", p))
		}
		if filter.Status != "" {
			conds = append(conds, "status = "+arg(string(filter.Status)))
		}
		if filter.InstructorID != "" {
			conds = append(conds, "instructor_id = "+arg(filter.InstructorID))
		}
		if filter.IsFeatured != nil {
			conds = append(conds, "is_featured = "+arg(*filter.IsFeatured))
		}
		if !filter.CreatedFrom.IsZero() {
			conds = append(conds, "created_at >= "+arg(filter.CreatedFrom.UTC()))
		}
		if !filter.CreatedTo.IsZero() {
			conds = append(conds, "created_at <= "+arg(filter.CreatedTo.UTC()))
		}
	}

	query := "SELECT " + courseCols + " FROM courses"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += orderClause(ordering, courseSortFields)

	var rows []courseRow
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying courses")
	}

	courses := make([]course.Course, 0, len(rows))
	for _, r := range rows {
		courses = append(courses, repo.fromRow(r))
	}
	return courses, nil
}

func (repo courseRepository) UpdateCourse(ctx context.Context, crs course.Course, isFeatured *bool) (course.Course, error) {
	var (
		sets []string
		args []interface{}
	)
	set := func(col string, v interface{}) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if crs.Title != "" {
		set("title", crs.Title)
	}
	if crs.Slug != "" {
		set("slug", crs.Slug)
	}
	if crs.Description != "" {
		set("description", crs.Description)
	}
	if crs.Image != "" {
		set("image", crs.Image)
	}
	if crs.CategoryID.Valid {
		set("category_id", crs.CategoryID)
	}
	if isFeatured != nil {
		set("is_featured", *isFeatured)
	}
	set("price", crs.Price)
	set("updated_at", crs.UpdatedAt.UTC())

	args = append(args, crs.ID)
	query := fmt.Sprintf(
		"UPDATE courses SET %s WHERE id = $%d RETURNING %s",
		strings.Join(sets, ", "), len(args), courseCols)

	var r courseRow
	if err := repo.db.GetContext(ctx, &r, query, args...); err != nil {
		return course.Course{}, repo.trapNoRowsErr(err, "updating course")
	}
	return repo.fromRow(r), nil
}

// UpdateCourseStatus applies the transition only when the course is still in
// `from`; losing a race yields ErrInvalidTransition, not an overwrite.
func (repo courseRepository) UpdateCourseStatus(ctx context.Context, id string, from, to course.Status, note null.String, at time.Time) (course.Course, error) {
	if _, err := uuid.Parse(id); err != nil {
		return course.Course{}, course.ErrNotFound
	}

	query := `
		UPDATE courses
		SET status = $1, review_note = COALESCE($2, review_note), updated_at = $3
		WHERE id = $4 AND status = $5
		RETURNING ` + courseCols

	var r courseRow
	err := repo.db.GetContext(ctx, &r, query, string(to), note, at.UTC(), id, string(from))
	if err == nil {
		return repo.fromRow(r), nil
	}
	if err != sql.ErrNoRows {
		return course.Course{}, errors.Wrap(err, "updating course status")
	}

	// no row updated: the course is gone or not in the expected state
	if _, err := repo.GetCourse(ctx, course.GetFilter{ID: id}); err != nil {
		return course.Course{}, err
	}
	return course.Course{}, course.ErrInvalidTransition
}

func (repo courseRepository) DeleteCoursesByID(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := repo.db.ExecContext(ctx, "DELETE FROM courses WHERE id = ANY($1)", pq.Array(ids)); err != nil {
		return errors.Wrap(err, "deleting courses")
	}
	return nil
}
