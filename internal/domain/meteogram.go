package domain

import (
	"strings"
	"time"
	"unicode"
)

// Meteogram describes one rendered chart.
type Meteogram struct {
	ID          string      `json:"id"`
	City        string      `json:"city"`
	Run         string      `json:"run"`
	Coordinates Coordinates `json:"coordinates"`
	ImagePath   string      `json:"image_path"`
	RenderedAt  time.Time   `json:"rendered_at"`
}

// FileSafeName turns a city name into a single path element. Letters,
// digits, '-' and '.' are kept; everything else becomes '_'.
func FileSafeName(city string) string {
	name := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '.' {
			return r
		}
		return '_'
	}, strings.TrimSpace(city))
	if name == "" || strings.Trim(name, ".") == "" {
		return "_"
	}
	return name
}

// MeteogramJob is the input of one rendering.
type MeteogramJob struct {
	City        string
	Run         ForecastRun
	Coordinates Coordinates
	Dataset     string // point file produced by extraction
}
