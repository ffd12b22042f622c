package model

import "time"

type Portfolio struct {
	ID          uint64    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	EventType   string    `json:"event_type"`
	MainImage   string    `json:"main_image"`
	Images      []string  `json:"images"`
	Status      string    `json:"status"`
	Deleted     bool      `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Files lists every stored file the portfolio references.
func (p Portfolio) Files() []string {
	out := make([]string, 0, len(p.Images)+1)
	if p.MainImage != "" {
		out = append(out, p.MainImage)
	}
	return append(out, p.Images...)
}
