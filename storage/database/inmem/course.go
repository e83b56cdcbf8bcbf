package inmem

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"

	"github.com/elimuhub/elimu/core"
	"github.com/elimuhub/elimu/core/course"
)

type CourseRepository struct {
	mu      sync.RWMutex
	courses map[string]course.Course
}

var _ course.Repository = (*CourseRepository)(nil) // interface compliance check

func NewCourseRepository() *CourseRepository {
	return &CourseRepository{courses: make(map[string]course.Course)}
}

func (repo *CourseRepository) CheckSlugUniqueness(ctx context.Context, slg string, excludedCourses ...course.Course) error {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	excluded := make(map[string]struct{}, len(excludedCourses))
	for _, c := range excludedCourses {
		excluded[c.ID] = struct{}{}
	}
	for _, c := range repo.courses {
		if _, ok := excluded[c.ID]; ok {
			continue
		}
		if c.Slug == slg {
			return course.ErrSlugExists
		}
	}
	return nil
}

func (repo *CourseRepository) CreateCourse(ctx context.Context, crs course.Course) (course.Course, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	crs.ID = uuid.New().String()
	repo.courses[crs.ID] = crs
	return crs, nil
}

func (repo *CourseRepository) GetCourse(ctx context.Context, filter course.GetFilter) (course.Course, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()
	return repo.getCourse(filter)
}

// getCourse expects the caller to hold the lock.
func (repo *CourseRepository) getCourse(filter course.GetFilter) (course.Course, error) {
	if filter.ID != "" {
		if crs, ok := repo.courses[filter.ID]; ok {
			return crs, nil
		}
		return course.Course{}, course.ErrNotFound
	}
	if filter.Slug != "" {
		for _, crs := range repo.courses {
			if crs.Slug == filter.Slug {
				return crs, nil
			}
		}
	}
	return course.Course{}, course.ErrNotFound
}

func (repo *CourseRepository) QueryCourses(ctx context.Context, filter *course.QueryFilter, ordering []core.DBOrdering) ([]course.Course, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	courses := make([]course.Course, 0, len(repo.courses))
	for _, crs := range repo.courses {
		if matchCourse(crs, filter) {
			courses = append(courses, crs)
		}
	}
	sort.Slice(courses, func(i, j int) bool {
		if !courses[i].CreatedAt.Equal(courses[j].CreatedAt) {
			return courses[i].CreatedAt.Before(courses[j].CreatedAt)
		}
		return courses[i].ID < courses[j].ID
	})
	return courses, nil
}

func matchCourse(crs course.Course, filter *course.QueryFilter) bool {
	if filter == nil {
		return true
	}
	if filter.Search != "" {
		s := strings.ToLower(filter.Search)
		if !strings.Contains(strings.ToLower(crs.Title), s) &&
			!strings.Contains(strings.ToLower(crs.Description), s) {
			return false
		}
	}
	if filter.Status != "" && crs.Status != filter.Status {
		return false
	}
	if filter.InstructorID != "" && crs.InstructorID != filter.InstructorID {
		return false
	}
	if filter.IsFeatured != nil && crs.IsFeatured != *filter.IsFeatured {
		return false
	}
	if !filter.CreatedFrom.IsZero() && crs.CreatedAt.Before(filter.CreatedFrom) {
		return false
	}
	if !filter.CreatedTo.IsZero() && crs.CreatedAt.After(filter.CreatedTo) {
		return false
	}
	return true
}

func (repo *CourseRepository) UpdateCourse(ctx context.Context, crs course.Course, isFeatured *bool) (course.Course, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	orig, ok := repo.courses[crs.ID]
	if !ok {
		return course.Course{}, course.ErrNotFound
	}
	if crs.Title != "" {
		orig.Title = crs.Title
	}
	if crs.Slug != "" {
		orig.Slug = crs.Slug
	}
	if crs.Description != "" {
		orig.Description = crs.Description
	}
	if crs.Image != "" {
		orig.Image = crs.Image
	}
	if crs.CategoryID.Valid {
		orig.CategoryID = crs.CategoryID
	}
	if isFeatured != nil {
		orig.IsFeatured = *isFeatured
	}
	orig.Price = crs.Price
	orig.UpdatedAt = crs.UpdatedAt
	repo.courses[orig.ID] = orig
	return orig, nil
}

// UpdateCourseStatus is a check-and-set under the write lock so concurrent
// callers race exactly as they would against the SQL conditional update.
func (repo *CourseRepository) UpdateCourseStatus(ctx context.Context, id string, from, to course.Status, note null.String, at time.Time) (course.Course, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	crs, err := repo.getCourse(course.GetFilter{ID: id})
	if err != nil {
		return course.Course{}, err
	}
	if crs.Status != from {
		return course.Course{}, course.ErrInvalidTransition
	}
	crs.Status = to
	if note.Valid {
		crs.ReviewNote = note
	}
	crs.UpdatedAt = at
	repo.courses[crs.ID] = crs
	return crs, nil
}

func (repo *CourseRepository) DeleteCoursesByID(ctx context.Context, ids ...string) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	for _, id := range ids {
		delete(repo.courses, id)
	}
	return nil
}
