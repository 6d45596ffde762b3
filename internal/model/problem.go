package model

import (
	"strings"
	"time"
)

type ProblemStatus string

const (
	ProblemDraft     ProblemStatus = "draft"
	ProblemPublished ProblemStatus = "published"
	ProblemArchived  ProblemStatus = "archived"
)

// DefaultPreviewLeadHours за сколько часов до старта задача видна студенту
const DefaultPreviewLeadHours = 24

type Problem struct {
	ID                 int64         `json:"id"`
	AuthorID           int64         `json:"author_id"`
	Title              string        `json:"title"`
	Content            string        `json:"content"`
	Status             ProblemStatus `json:"status"`
	ScheduledPublishAt *time.Time    `json:"scheduled_publish_at"`
	PreviewLeadHours   int           `json:"preview_lead_hours"`
	PublishedAt        *time.Time    `json:"published_at"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// HasContent заголовок и текст не пустые
func (p *Problem) HasContent() bool {
	return strings.TrimSpace(p.Title) != "" && strings.TrimSpace(p.Content) != ""
}

// DueAt наступило ли время публикации
func (p *Problem) DueAt(now time.Time) bool {
	return p.ScheduledPublishAt == nil || !p.ScheduledPublishAt.After(now)
}

// PreviewLead время предпросмотра задачи
func (p *Problem) PreviewLead() time.Duration {
	return time.Duration(p.PreviewLeadHours) * time.Hour
}

// ProblemAudit запись журнала публикаций
type ProblemAudit struct {
	ID         int64         `json:"id"`
	ProblemID  int64         `json:"problem_id"`
	FromStatus ProblemStatus `json:"from_status"`
	ToStatus   ProblemStatus `json:"to_status"`
	Trigger    string        `json:"trigger"` // sweep, manual
	ActorID    int64         `json:"actor_id"`
	CreatedAt  time.Time     `json:"created_at"`
}
