package models

import "gorm.io/gorm"

const (
	CourseDraft     = "draft"
	CoursePublished = "published"
	CourseArchived  = "archived"
)

type Course struct {
	gorm.Model
	Title       string  `gorm:"not null" json:"title"`
	ShortDesc   string  `json:"short_desc"`
	Description string  `json:"description"`
	Topic       string  `json:"topic"`
	Difficulty  string  `json:"difficulty"` // beginner, intermediate, advanced
	Price       int64   `gorm:"not null;default:0" json:"price"` // 0 means free
	Status      string  `gorm:"default:draft" json:"status"`     // draft, published, archived
	LevelCount  int     `gorm:"default:0" json:"level_count"`
	Levels      []Level `json:"levels,omitempty"`
}

func (c *Course) IsFree() bool {
	return c.Price == 0
}

func (c *Course) IsPublished() bool {
	return c.Status == CoursePublished
}

// Video source variants. A level carries either a file under the storage dir
// or a link to an allow-listed external host, never both.
const (
	VideoNone   = ""
	VideoLocal  = "local"
	VideoRemote = "remote"
)

type VideoSource struct {
	Type string
	Path string // set when Type == local
	URL  string // set when Type == remote
}

func (v VideoSource) IsSet() bool {
	return v.Type == VideoLocal || v.Type == VideoRemote
}

type Level struct {
	gorm.Model
	CourseID     uint   `gorm:"not null;uniqueIndex:idx_levels_course_number" json:"course_id"`
	Title        string `gorm:"not null" json:"title"`
	Description  string `json:"description"`
	LevelNumber  int    `gorm:"not null;uniqueIndex:idx_levels_course_number" json:"level_number"`
	QuizRequired bool   `gorm:"default:false" json:"quiz_required"`
	Status       string `gorm:"default:active" json:"status"`

	VideoType string `gorm:"default:''" json:"-"`
	VideoPath string `json:"-"`
	VideoURL  string `json:"-"`
}

func (l *Level) Video() VideoSource {
	switch l.VideoType {
	case VideoLocal:
		return VideoSource{Type: VideoLocal, Path: l.VideoPath}
	case VideoRemote:
		return VideoSource{Type: VideoRemote, URL: l.VideoURL}
	default:
		return VideoSource{}
	}
}

func (l *Level) SetVideo(src VideoSource) {
	l.VideoType = src.Type
	l.VideoPath = ""
	l.VideoURL = ""
	switch src.Type {
	case VideoLocal:
		l.VideoPath = src.Path
	case VideoRemote:
		l.VideoURL = src.URL
	}
}
