package ledger

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MasterChonk/SkillToken-V2/internal/observability"
	"github.com/MasterChonk/SkillToken-V2/pkg/credential"
	skerrors "github.com/MasterChonk/SkillToken-V2/pkg/errors"
)

// RegisterCourse creates a course owned by caller, who must be a TEACHER.
func (l *Ledger) RegisterCourse(ctx context.Context, caller credential.Account, name string) (_ credential.Course, err error) {
	op, ctx := observability.StartOperation(ctx, l.metrics, "ledger.register_course")
	defer func() { op.End(err) }()

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.st.hasRole(caller, credential.RoleTeacher) {
		return credential.Course{}, skerrors.Unauthorized("%s is not a teacher", caller)
	}
	name = strings.TrimSpace(name)
	if n := utf8.RuneCountInString(name); n == 0 || n > credential.MaxCourseNameLen {
		return credential.Course{}, skerrors.InvalidInput("course name must be 1..%d characters, got %d", credential.MaxCourseNameLen, n)
	}

	c := l.begin(caller)
	course := credential.Course{
		ID:        uint64(len(l.st.courses)) + 1,
		Name:      name,
		Owner:     caller,
		Active:    true,
		CreatedAt: c.at,
	}
	c.Courses = append(c.Courses, course)
	c.emit(credential.Event{
		Type:     credential.EventCourseRegistered,
		CourseID: course.ID,
		Name:     course.Name,
		Owner:    course.Owner,
	})
	if err := l.apply(ctx, c); err != nil {
		return credential.Course{}, err
	}

	l.log.WithAccount("owner", caller).WithCourse(course.ID).Info("course registered", "name", name)
	return course, nil
}

// DeactivateCourse stops further issuance on a course. Only the owner may
// deactivate and it cannot be undone.
func (l *Ledger) DeactivateCourse(ctx context.Context, caller credential.Account, courseID uint64) (_ credential.Course, err error) {
	op, ctx := observability.StartOperation(ctx, l.metrics, "ledger.deactivate_course",
		attribute.Int64("course_id", int64(courseID)))
	defer func() { op.End(err) }()

	l.mu.Lock()
	defer l.mu.Unlock()

	course, ok := l.st.course(courseID)
	if !ok {
		return credential.Course{}, skerrors.NotFound("course %d", courseID)
	}
	if course.Owner != caller {
		return credential.Course{}, skerrors.Unauthorized("only the owner may deactivate course %d", courseID)
	}
	if !course.Active {
		return credential.Course{}, skerrors.Newf(skerrors.CodeCourseInactive, "course %d is already inactive", courseID)
	}

	c := l.begin(caller)
	course.Active = false
	c.Courses = append(c.Courses, course)
	c.emit(credential.Event{
		Type:     credential.EventCourseDeactivated,
		CourseID: course.ID,
		Owner:    course.Owner,
	})
	if err := l.apply(ctx, c); err != nil {
		return credential.Course{}, err
	}

	l.log.WithCourse(courseID).Info("course deactivated")
	return course, nil
}

// GetCourse returns a course by id.
func (l *Ledger) GetCourse(_ context.Context, courseID uint64) (credential.Course, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	course, ok := l.st.course(courseID)
	if !ok {
		return credential.Course{}, skerrors.NotFound("course %d", courseID)
	}
	return course, nil
}

// GetCoursesByOwner returns owner's courses in registration order.
func (l *Ledger) GetCoursesByOwner(_ context.Context, owner credential.Account) []credential.Course {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ids := l.st.coursesByOwner[owner]
	out := make([]credential.Course, 0, len(ids))
	for _, id := range ids {
		out = append(out, l.st.courses[id-1])
	}
	return out
}

// TotalCourses returns the number of registered courses.
func (l *Ledger) TotalCourses(_ context.Context) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return uint64(len(l.st.courses))
}
