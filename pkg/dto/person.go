package dto

import "github.com/google/uuid"

// EnrollRequest is the registration form: a name, a contact number and a
// captured photo as a base64 image data URI.
type EnrollRequest struct {
	Name      string `json:"name" form:"name" validate:"notblank,max=100"`
	Number    string `json:"number" form:"number" validate:"notblank,max=15"`
	FaceImage string `json:"faceimage" form:"faceimage" validate:"required,datauri_image"`
}

// RecognizeRequest carries one captured frame. Malformed payloads are
// reported as request errors, not as a failed recognition.
type RecognizeRequest struct {
	FaceImage string `json:"faceimage" form:"faceimage"`
}

// CaptureRequest is echoed back unchanged by the capture endpoint.
type CaptureRequest struct {
	FaceImage string `json:"faceimage" form:"faceimage"`
}

type CaptureResponse struct {
	Status    string `json:"status"`
	FaceImage string `json:"faceimage"`
}

const (
	StatusSuccess = "success"
	StatusFail    = "fail"

	MessageNoFace  = "No face detected"
	MessageUnknown = "Unknown face"
)

// RecognitionResponse is {status:"success", name, number, faceimage} on a
// match and {status:"fail", message} otherwise.
type RecognitionResponse struct {
	Status    string `json:"status"`
	Name      string `json:"name,omitempty"`
	Number    string `json:"number,omitempty"`
	FaceImage string `json:"faceimage,omitempty"`
	Message   string `json:"message,omitempty"`
}

// UpdatePersonRequest edits roster fields. The embedding is never edited.
type UpdatePersonRequest struct {
	Name   string `json:"name" form:"name" validate:"notblank,max=100"`
	Number string `json:"number" form:"number" validate:"notblank,max=15"`
}

type PersonResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Number    string    `json:"number"`
	FaceImage string    `json:"faceimage"`
	Embedded  bool      `json:"embedded"`
	CreatedAt string    `json:"created_at"`
	UpdatedAt string    `json:"updated_at"`
}

type PersonListResponse struct {
	Persons []PersonResponse `json:"persons"`
	Total   int              `json:"total"`
}
