package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/qrave1/PairCall/internal/application/constant"
	"github.com/qrave1/PairCall/internal/infra/appctx"
	"github.com/qrave1/PairCall/internal/infra/ports/http/dto"
	"github.com/qrave1/PairCall/internal/usecase"
)

type RendezvousHandler struct {
	rendezvousUsecase usecase.RendezvousUsecase
}

func NewRendezvousHandler(rendezvousUsecase usecase.RendezvousUsecase) *RendezvousHandler {
	return &RendezvousHandler{rendezvousUsecase: rendezvousUsecase}
}

// errorJSON отвечает кодом API. Неизвестные ошибки логируются и скрываются от клиента.
func errorJSON(c echo.Context, op string, err error) error {
	status, code := dto.ErrorStatus(err)

	if status >= http.StatusInternalServerError {
		slog.Error(op, slog.String(constant.RoomKey, c.Param("key")), slog.Any(constant.Error, err))
		return c.JSON(status, dto.ErrorResponse{Error: code})
	}

	return c.JSON(status, dto.ErrorResponse{Error: code, Message: err.Error()})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: dto.CodeInvalidRequest, Message: msg})
}

func participant(c echo.Context) string {
	ref, _ := appctx.Participant(c.Request().Context())
	return ref
}

func (h *RendezvousHandler) PairingKey(c echo.Context) error {
	key, err := h.rendezvousUsecase.NewKey()
	if err != nil {
		return errorJSON(c, "generate pairing key", err)
	}

	return c.JSON(http.StatusOK, dto.KeyResponse{Key: key})
}

func (h *RendezvousHandler) GetRoom(c echo.Context) error {
	room, err := h.rendezvousUsecase.GetRoom(c.Request().Context(), c.Param("key"))
	if err != nil {
		return errorJSON(c, "get room", err)
	}

	return c.JSON(http.StatusOK, dto.RoomResponse{Room: room})
}

func (h *RendezvousHandler) CreateRoom(c echo.Context) error {
	var req dto.CreateRoomRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	room, err := h.rendezvousUsecase.CreateRoom(c.Request().Context(), c.Param("key"), req.Offer, participant(c))
	if err != nil {
		return errorJSON(c, "create room", err)
	}

	return c.JSON(http.StatusCreated, dto.RoomResponse{Room: room})
}

func (h *RendezvousHandler) SetAnswer(c echo.Context) error {
	var req dto.AnswerRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	room, err := h.rendezvousUsecase.Answer(c.Request().Context(), c.Param("key"), req.Answer, participant(c))
	if err != nil {
		return errorJSON(c, "set answer", err)
	}

	return c.JSON(http.StatusOK, dto.RoomResponse{Room: room})
}

func (h *RendezvousHandler) PublishCandidate(c echo.Context) error {
	var req dto.CandidateRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	err := h.rendezvousUsecase.PublishCandidate(c.Request().Context(), c.Param("key"), req.Origin, req.Role, req.Candidate)
	if err != nil {
		return errorJSON(c, "publish candidate", err)
	}

	return c.NoContent(http.StatusCreated)
}

func (h *RendezvousHandler) AppendMessage(c echo.Context) error {
	var req dto.MessageRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	msg, err := h.rendezvousUsecase.AppendMessage(c.Request().Context(), c.Param("key"), req.Text, participant(c))
	if err != nil {
		return errorJSON(c, "append message", err)
	}

	return c.JSON(http.StatusCreated, dto.MessageResponse{Message: msg})
}
