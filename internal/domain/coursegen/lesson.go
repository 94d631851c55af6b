package coursegen

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LessonKey is the storage identifier of a lesson. It is never shown to users.
type LessonKey uuid.UUID

func NewLessonKey() LessonKey { return LessonKey(uuid.New()) }

func ParseLessonKey(raw string) (LessonKey, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return LessonKey{}, fmt.Errorf("invalid lesson key %q: %w", raw, err)
	}
	if id == uuid.Nil {
		return LessonKey{}, fmt.Errorf("invalid lesson key: nil uuid")
	}
	return LessonKey(id), nil
}

func (k LessonKey) UUID() uuid.UUID { return uuid.UUID(k) }
func (k LessonKey) String() string  { return uuid.UUID(k).String() }
func (k LessonKey) IsZero() bool    { return uuid.UUID(k) == uuid.Nil }

func (k LessonKey) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *LessonKey) UnmarshalText(b []byte) error {
	parsed, err := ParseLessonKey(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// PositionLabel is the human-facing "<section>.<lesson>" label, 1-based.
type PositionLabel struct {
	section int
	lesson  int
}

func NewPositionLabel(section, lesson int) (PositionLabel, error) {
	if section < 1 || lesson < 1 {
		return PositionLabel{}, fmt.Errorf("invalid position %d.%d", section, lesson)
	}
	return PositionLabel{section: section, lesson: lesson}, nil
}

func ParsePositionLabel(raw string) (PositionLabel, error) {
	parts := strings.Split(strings.TrimSpace(raw), ".")
	if len(parts) != 2 {
		return PositionLabel{}, fmt.Errorf("invalid position label %q", raw)
	}
	section, err := strconv.Atoi(parts[0])
	if err != nil {
		return PositionLabel{}, fmt.Errorf("invalid position label %q: %w", raw, err)
	}
	lesson, err := strconv.Atoi(parts[1])
	if err != nil {
		return PositionLabel{}, fmt.Errorf("invalid position label %q: %w", raw, err)
	}
	return NewPositionLabel(section, lesson)
}

func (p PositionLabel) Section() int { return p.section }
func (p PositionLabel) Lesson() int  { return p.lesson }
func (p PositionLabel) IsZero() bool { return p.section == 0 && p.lesson == 0 }

func (p PositionLabel) String() string {
	if p.IsZero() {
		return ""
	}
	return fmt.Sprintf("%d.%d", p.section, p.lesson)
}

func (p PositionLabel) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *PositionLabel) UnmarshalText(b []byte) error {
	parsed, err := ParsePositionLabel(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// CourseStructure is the output of structure generation.
type CourseStructure struct {
	Title    string           `json:"title"`
	Sections []SectionOutline `json:"sections"`
}

type SectionOutline struct {
	Title   string          `json:"title"`
	Lessons []LessonOutline `json:"lessons"`
}

type LessonOutline struct {
	Key     LessonKey     `json:"key"`
	Label   PositionLabel `json:"label"`
	Title   string        `json:"title"`
	Summary string        `json:"summary,omitempty"`
}

func (s *CourseStructure) Lessons() []LessonOutline {
	if s == nil {
		return nil
	}
	var out []LessonOutline
	for _, sec := range s.Sections {
		out = append(out, sec.Lessons...)
	}
	return out
}

type LessonContent struct {
	LessonID  uuid.UUID `gorm:"type:uuid;primaryKey" json:"lesson_id"`
	CourseID  uuid.UUID `gorm:"type:uuid;column:course_id;not null;index" json:"course_id"`
	Label     string    `gorm:"column:label;not null" json:"label"`
	Title     string    `gorm:"column:title;not null" json:"title"`
	Body      string    `gorm:"column:body" json:"body"`
	CreatedAt time.Time `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null" json:"updated_at"`
}

func (LessonContent) TableName() string { return "lesson_content" }

func NewLessonContent(courseID uuid.UUID, key LessonKey, label PositionLabel, title, body string) *LessonContent {
	now := time.Now().UTC()
	return &LessonContent{
		LessonID:  key.UUID(),
		CourseID:  courseID,
		Label:     label.String(),
		Title:     title,
		Body:      body,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (c *LessonContent) Key() LessonKey { return LessonKey(c.LessonID) }

func (c *LessonContent) Position() (PositionLabel, error) { return ParsePositionLabel(c.Label) }
