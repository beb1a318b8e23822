// Package recognition enrolls persons from captured photos and identifies
// faces in captured frames against the enrolled roster.
package recognition

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/your-org/facerecog/internal/datauri"
	"github.com/your-org/facerecog/internal/models"
	"github.com/your-org/facerecog/internal/observability"
	"github.com/your-org/facerecog/internal/queue"
	"github.com/your-org/facerecog/internal/vision"
	"github.com/your-org/facerecog/pkg/dto"
)

var ErrCapabilityUnavailable = errors.New("face capability unavailable")

// PhotoPrefix is the object key prefix for enrollment photos.
const PhotoPrefix = "face_images/"

// regionPad widens each detected box before the region is embedded, so the
// embedder can find the face again inside the crop.
const regionPad = 0.25

type Roster interface {
	CreatePerson(ctx context.Context, p *models.Person) error
	ListPersonsWithEmbedding(ctx context.Context) ([]models.Person, error)
}

type PhotoStore interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
	DeleteObject(ctx context.Context, key string) error
}

type Publisher interface {
	PublishEvent(ctx context.Context, subject string, data interface{}) error
}

type Service struct {
	faces        vision.Capability
	roster       Roster
	photos       PhotoStore
	pub          Publisher
	mediaBaseURL string
}

// NewService wires the capability and stores. pub may be nil.
func NewService(faces vision.Capability, roster Roster, photos PhotoStore, pub Publisher, mediaBaseURL string) *Service {
	return &Service{
		faces:        faces,
		roster:       roster,
		photos:       photos,
		pub:          pub,
		mediaBaseURL: strings.TrimRight(mediaBaseURL, "/"),
	}
}

// PhotoURL returns the public URL of a stored photo.
func (s *Service) PhotoURL(key string) string {
	if key == "" {
		return ""
	}
	return s.mediaBaseURL + "/" + key
}

type EnrollInput struct {
	Name   string
	Number string
	Image  *datauri.DataURI
}

// Enroll stores the photo and inserts exactly one Person. The embedding is
// taken from the first face in the whole photo; a photo without a detectable
// face still creates the row, with no embedding.
func (s *Service) Enroll(ctx context.Context, in EnrollInput) (*models.Person, error) {
	if s.faces == nil {
		return nil, ErrCapabilityUnavailable
	}

	img, err := vision.DecodeImage(in.Image.Data)
	if err != nil {
		return nil, err
	}

	embedding, ok, err := s.faces.Embed(img)
	if err != nil {
		return nil, fmt.Errorf("embed enrollment photo: %w", err)
	}
	if !ok {
		slog.Warn("enrollment photo has no detectable face, storing without embedding", "name", in.Name)
		embedding = nil
	}

	id := uuid.New()
	key := PhotoKey(id, in.Name, in.Image.Ext())
	if err := s.photos.PutObject(ctx, key, in.Image.Data, in.Image.MIMEType); err != nil {
		return nil, fmt.Errorf("store photo: %w", err)
	}

	p := &models.Person{
		ID:        id,
		Name:      in.Name,
		Number:    in.Number,
		PhotoKey:  key,
		Embedding: embedding,
	}
	if err := s.roster.CreatePerson(ctx, p); err != nil {
		if delErr := s.photos.DeleteObject(ctx, key); delErr != nil {
			slog.Warn("remove orphaned photo", "key", key, "error", delErr)
		}
		return nil, fmt.Errorf("insert person: %w", err)
	}

	observability.Enrollments.WithLabelValues(strconv.FormatBool(p.HasEmbedding())).Inc()
	slog.Info("person enrolled", "person_id", p.ID, "name", p.Name, "embedded", p.HasEmbedding())

	pid := p.ID
	s.publish(ctx, queue.SubjectEnrolled, models.FaceEvent{
		Type:     models.FaceEventEnrolled,
		PersonID: &pid,
		Name:     p.Name,
		Number:   p.Number,
		PhotoURL: s.PhotoURL(p.PhotoKey),
		Faces:    boolToInt(ok),
		Embedded: p.HasEmbedding(),
	})
	return p, nil
}

// Recognize identifies the faces in a captured frame. Faces are tried in
// detection order; for each one the roster is reloaded and the first person
// whose embedding compares true wins.
func (s *Service) Recognize(ctx context.Context, data []byte) (*dto.RecognitionResponse, error) {
	if s.faces == nil {
		return nil, ErrCapabilityUnavailable
	}
	start := time.Now()
	defer func() {
		observability.InferenceDuration.WithLabelValues("recognize").Observe(time.Since(start).Seconds())
	}()

	img, err := vision.DecodeImage(data)
	if err != nil {
		return nil, err
	}

	boxes, err := s.faces.Detect(img)
	if err != nil {
		return nil, fmt.Errorf("detect faces: %w", err)
	}
	observability.FacesDetected.Add(float64(len(boxes)))

	if len(boxes) == 0 {
		observability.Recognitions.WithLabelValues(dto.StatusFail, models.FaceEventNoFace).Inc()
		s.publish(ctx, queue.SubjectUnknown, models.FaceEvent{Type: models.FaceEventNoFace})
		return &dto.RecognitionResponse{Status: dto.StatusFail, Message: dto.MessageNoFace}, nil
	}

	for i, box := range boxes {
		candidate, err := s.embedRegion(img, box)
		if err != nil {
			return nil, fmt.Errorf("embed face %d: %w", i, err)
		}

		persons, err := s.roster.ListPersonsWithEmbedding(ctx)
		if err != nil {
			return nil, fmt.Errorf("load roster: %w", err)
		}
		known := make([][]float32, len(persons))
		for j := range persons {
			known[j] = persons[j].Embedding
		}

		for j, match := range s.faces.Compare(known, candidate) {
			if !match {
				continue
			}
			p := persons[j]
			url := s.PhotoURL(p.PhotoKey)
			observability.Recognitions.WithLabelValues(dto.StatusSuccess, models.FaceEventRecognized).Inc()
			slog.Info("face recognized", "person_id", p.ID, "name", p.Name, "face", i, "faces", len(boxes))

			pid := p.ID
			s.publish(ctx, queue.SubjectRecognized, models.FaceEvent{
				Type:     models.FaceEventRecognized,
				PersonID: &pid,
				Name:     p.Name,
				Number:   p.Number,
				PhotoURL: url,
				Faces:    len(boxes),
				Embedded: true,
			})
			return &dto.RecognitionResponse{
				Status:    dto.StatusSuccess,
				Name:      p.Name,
				Number:    p.Number,
				FaceImage: url,
			}, nil
		}
	}

	observability.Recognitions.WithLabelValues(dto.StatusFail, models.FaceEventUnknown).Inc()
	s.publish(ctx, queue.SubjectUnknown, models.FaceEvent{Type: models.FaceEventUnknown, Faces: len(boxes)})
	return &dto.RecognitionResponse{Status: dto.StatusFail, Message: dto.MessageUnknown}, nil
}

// embedRegion returns nil when the region yields no embedding; Compare then
// reports no match for it.
func (s *Service) embedRegion(img image.Image, box vision.BoundingBox) ([]float32, error) {
	region := vision.Crop(img, box.Rectangle, regionPad)
	if region == nil {
		return nil, nil
	}
	embedding, ok, err := s.faces.Embed(region)
	if err != nil || !ok {
		return nil, err
	}
	return embedding, nil
}

func (s *Service) publish(ctx context.Context, subject string, ev models.FaceEvent) {
	if s.pub == nil {
		return
	}
	ev.Timestamp = time.Now().UTC()
	if err := s.pub.PublishEvent(ctx, subject, ev); err != nil {
		slog.Warn("publish face event", "subject", subject, "type", ev.Type, "error", err)
	}
}

// PhotoKey builds face_images/<id>_<name>.<ext>. Characters outside letters,
// digits, '-' and '_' are replaced so the key is URL safe.
func PhotoKey(id uuid.UUID, name, ext string) string {
	safe := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			return r
		}
		return '_'
	}, strings.TrimSpace(name))
	return PhotoPrefix + id.String() + "_" + safe + "." + ext
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
