package model

// Note is a single workspace page. Tags keep insertion order for display.
type Note struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Tags      []string  `json:"tags"`
	ParentID  string    `json:"parent_id,omitempty"`
	Embedding []float32 `json:"embedding,omitempty"`
	State     int       `json:"state"`
	Ctime     int64     `json:"ctime"`
	Mtime     int64     `json:"mtime"`
}

// NoteUpdate is a partial update; nil fields are left untouched.
type NoteUpdate struct {
	Title    *string
	Content  *string
	Tags     *[]string
	ParentID *string
}
