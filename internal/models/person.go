package models

import (
	"time"

	"github.com/google/uuid"
)

// Person is an enrolled roster entry. Embedding is nil until computed from
// the photo; it is never edited on its own.
type Person struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Number    string    `json:"number" db:"number"`
	PhotoKey  string    `json:"photo_key" db:"photo_key"`
	Embedding []float32 `json:"-" db:"embedding"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

func (p *Person) HasEmbedding() bool {
	return len(p.Embedding) > 0
}
