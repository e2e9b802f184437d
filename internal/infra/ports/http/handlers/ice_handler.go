package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pion/webrtc/v4"

	"github.com/qrave1/PairCall/internal/application/config"
	"github.com/qrave1/PairCall/internal/infra/ports/http/dto"
	"github.com/qrave1/PairCall/internal/infra/ports/turn"
)

type IceHandler struct {
	cfg *config.Config
	now func() time.Time
}

func NewIceHandler(cfg *config.Config) *IceHandler {
	return &IceHandler{cfg: cfg, now: time.Now}
}

// IceServers выдаёт STUN и, если настроен coturn, TURN сервера
func (h *IceHandler) IceServers(c echo.Context) error {
	servers := make([]webrtc.ICEServer, 0, 2)

	if len(h.cfg.STUNServers) > 0 {
		servers = append(servers, h.cfg.STUN())
	}

	if h.cfg.CoturnServer.Enabled() {
		username, password := turn.Credentials(h.cfg.CoturnServer.Secret, h.now().Add(h.cfg.CoturnServer.TTL))

		servers = append(servers, webrtc.ICEServer{
			URLs: []string{
				h.cfg.TurnUDPServer.URLs[0],
				h.cfg.TurnTCPServer.URLs[0],
			},
			Username:   username,
			Credential: password,
		})
	}

	return c.JSON(http.StatusOK, dto.ICEResponse{ICEServers: servers})
}
