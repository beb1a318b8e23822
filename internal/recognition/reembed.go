package recognition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/your-org/facerecog/internal/models"
	"github.com/your-org/facerecog/internal/vision"
)

type EmbeddingStore interface {
	ListPersons(ctx context.Context) ([]models.Person, error)
	ListPersonsWithoutEmbedding(ctx context.Context) ([]models.Person, error)
	SetPersonEmbedding(ctx context.Context, id uuid.UUID, embedding []float32) error
}

type PhotoSource interface {
	GetObject(ctx context.Context, key string) ([]byte, error)
}

type ReembedResult struct {
	Updated int
	NoFace  int
	Failed  int
}

// Reembedder recomputes stored embeddings from the enrollment photos, for
// rows enrolled without a face or after a backend switch.
type Reembedder struct {
	faces  vision.Capability
	store  EmbeddingStore
	photos PhotoSource
}

func NewReembedder(faces vision.Capability, store EmbeddingStore, photos PhotoSource) *Reembedder {
	return &Reembedder{faces: faces, store: store, photos: photos}
}

// Targets lists the persons a run would touch: all of them, or only those
// without an embedding.
func (r *Reembedder) Targets(ctx context.Context, all bool) ([]models.Person, error) {
	if all {
		return r.store.ListPersons(ctx)
	}
	return r.store.ListPersonsWithoutEmbedding(ctx)
}

// Run re-embeds each person from its stored photo. A photo with no face
// clears the embedding. Per-person failures are logged and counted; done,
// when set, is called once per person.
func (r *Reembedder) Run(ctx context.Context, persons []models.Person, done func()) (ReembedResult, error) {
	var res ReembedResult
	if r.faces == nil {
		return res, ErrCapabilityUnavailable
	}

	for i := range persons {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		p := &persons[i]

		embedding, err := r.embed(ctx, p)
		switch {
		case err != nil:
			res.Failed++
			slog.Warn("re-embed person", "person_id", p.ID, "error", err)
		case embedding == nil:
			res.NoFace++
		default:
			res.Updated++
		}
		if err == nil {
			if err := r.store.SetPersonEmbedding(ctx, p.ID, embedding); err != nil {
				return res, fmt.Errorf("store embedding for %s: %w", p.ID, err)
			}
		}
		if done != nil {
			done()
		}
	}
	return res, nil
}

func (r *Reembedder) embed(ctx context.Context, p *models.Person) ([]float32, error) {
	if p.PhotoKey == "" {
		return nil, errors.New("person has no photo")
	}
	data, err := r.photos.GetObject(ctx, p.PhotoKey)
	if err != nil {
		return nil, fmt.Errorf("fetch photo: %w", err)
	}
	img, err := vision.DecodeImage(data)
	if err != nil {
		return nil, err
	}
	embedding, ok, err := r.faces.Embed(img)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return embedding, nil
}
