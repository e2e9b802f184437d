package dto

import (
	"errors"
	"net/http"

	"github.com/pion/webrtc/v4"

	"github.com/qrave1/PairCall/internal/domain/signaling"
	"github.com/qrave1/PairCall/internal/usecase"
)

type KeyResponse struct {
	Key string `json:"key"`
}

type ICEResponse struct {
	ICEServers []webrtc.ICEServer `json:"ice_servers"`
}

type CreateRoomRequest struct {
	Offer signaling.SessionDescription `json:"offer"`
}

type AnswerRequest struct {
	Answer signaling.SessionDescription `json:"answer"`
}

type RoomResponse struct {
	Room signaling.Room `json:"room"`
}

type CandidateRequest struct {
	Origin    string              `json:"origin"`
	Role      signaling.Role      `json:"role"`
	Candidate signaling.Candidate `json:"candidate"`
}

type MessageRequest struct {
	Text string `json:"text"`
}

type MessageResponse struct {
	Message signaling.MessageRecord `json:"message"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// Коды ошибок API
const (
	CodeInvalidKey         = "invalid_key"
	CodeRoomNotFound       = "room_not_found"
	CodeRoomConflict       = "room_conflict"
	CodeAnswerAlreadySet   = "answer_already_set"
	CodeInvalidDescription = "invalid_description"
	CodeInvalidCandidate   = "invalid_candidate"
	CodeInvalidMessage     = "invalid_message"
	CodeInvalidRequest     = "invalid_request"
	CodeUnauthorized       = "unauthorized"
	CodeUnknownTopic       = "unknown_topic"
	CodeInternal           = "internal"
)

var codes = []struct {
	err    error
	code   string
	status int
}{
	{signaling.ErrInvalidKey, CodeInvalidKey, http.StatusBadRequest},
	{signaling.ErrRoomNotFound, CodeRoomNotFound, http.StatusNotFound},
	{signaling.ErrRoomConflict, CodeRoomConflict, http.StatusConflict},
	{signaling.ErrAnswerAlreadySet, CodeAnswerAlreadySet, http.StatusConflict},
	{usecase.ErrInvalidDescription, CodeInvalidDescription, http.StatusBadRequest},
	{usecase.ErrInvalidCandidate, CodeInvalidCandidate, http.StatusBadRequest},
	{usecase.ErrInvalidOrigin, CodeInvalidCandidate, http.StatusBadRequest},
	{usecase.ErrInvalidMessage, CodeInvalidMessage, http.StatusBadRequest},
}

// ErrorStatus переводит доменную ошибку в HTTP статус и код API
func ErrorStatus(err error) (int, string) {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.status, c.code
		}
	}

	return http.StatusInternalServerError, CodeInternal
}

// ErrorFromCode - обратное преобразование на стороне клиента. nil для неизвестных кодов.
func ErrorFromCode(code string) error {
	for _, c := range codes {
		if c.code == code {
			return c.err
		}
	}

	return nil
}
