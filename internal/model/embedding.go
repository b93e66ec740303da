package model

type NoteEmbedding struct {
	NoteID      string    `json:"note_id"`
	UserID      string    `json:"user_id"`
	Embedding   []float32 `json:"embedding"`
	ContentHash string    `json:"content_hash"`
	Mtime       int64     `json:"mtime"`
}

type EmbeddingCache struct {
	ModelName   string    `json:"model_name"`
	TaskType    string    `json:"task_type"`
	ContentHash string    `json:"content_hash"`
	Embedding   []float32 `json:"embedding"`
	Ctime       int64     `json:"ctime"`
}

// EmbeddingAttempt records an unsuccessful sync of one note version. The note
// is not retried before RetryAt unless it is edited again.
type EmbeddingAttempt struct {
	NoteID    string `json:"note_id"`
	UserID    string `json:"user_id"`
	NoteMtime int64  `json:"note_mtime"`
	Attempts  int    `json:"attempts"`
	RetryAt   int64  `json:"retry_at"`
}
