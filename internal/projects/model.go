// Package projects reads and edits the remote project database.
package projects

import (
	"strings"
	"time"
)

// User is an artist credited on a project.
type User struct {
	ID         string `json:"_id"`
	Designated int    `json:"designated"`
	UserName   string `json:"user_name"`
}

// Project is one row of the project database.
type Project struct {
	ID                string           `json:"id"`
	ProjectID         string           `json:"project_id"`
	ProjectName       string           `json:"project_name"`
	Instructor        string           `json:"instructor"`
	Year              int              `json:"year"`
	Medium            string           `json:"medium"`
	Users             []User           `json:"users"`
	Keywords          string           `json:"keywords"`
	Audience          string           `json:"audience"`
	ElevatorPitch     string           `json:"elevator_pitch"`
	Description       string           `json:"description"`
	Background        string           `json:"background"`
	UserScenario      string           `json:"user_scenario"`
	TechnicalSystem   string           `json:"technical_system"`
	URL               string           `json:"url"`
	Video             string           `json:"video"`
	PublicVideoURL    string           `json:"public_video_url"`
	Conclusion        string           `json:"conclusion"`
	ProjectReferences string           `json:"project_references"`
	Thesis            string           `json:"thesis"`
	Timestamp         string           `json:"timestamp"`
	PersonalStatement string           `json:"personal_statement"`
	Sustain           string           `json:"sustain"`
	ThesisSlides      string           `json:"thesis_slides"`
	ThesisTags        string           `json:"thesis_tags"`
	Image             string           `json:"image"`
	ImageAlt          string           `json:"image_alt"`
	Documents         []map[string]any `json:"documents,omitempty"`
	Classes           []map[string]any `json:"classes,omitempty"`
	Instructors       []map[string]any `json:"instructors,omitempty"`
}

// Artists joins the credited user names, or "N/A" when there are none.
func (p *Project) Artists() string {
	names := make([]string, 0, len(p.Users))
	for _, u := range p.Users {
		if u.UserName != "" {
			names = append(names, u.UserName)
		}
	}
	if len(names) == 0 {
		return "N/A"
	}
	return strings.Join(names, ", ")
}

// normalize fills Year from Timestamp when the backend omitted it.
func (p *Project) normalize() {
	if p.Year != 0 || p.Timestamp == "" {
		return
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", time.DateTime, time.DateOnly} {
		if ts, err := time.Parse(layout, p.Timestamp); err == nil {
			p.Year = ts.Year()
			return
		}
	}
}

// Page is one page of projects plus the total page count.
type Page struct {
	Projects  []Project `json:"projects"`
	PageIndex int       `json:"page_index"`
	PageSize  int       `json:"page_size"`
	Total     int       `json:"total"`
	PageCount int       `json:"page_count"`
}

// Prompt is a reusable system/main prompt pair.
type Prompt struct {
	ID           string    `json:"_id,omitempty"`
	Title        string    `json:"title"`
	Type         string    `json:"type"`
	SystemPrompt string    `json:"system_prompt"`
	MainPrompt   string    `json:"main_prompt"`
	CreatedAt    time.Time `json:"created_at,omitzero"`
}
