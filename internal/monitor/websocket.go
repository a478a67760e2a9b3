package monitor

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo"

	"simsweep/internal/broadcast"
	"simsweep/internal/controller"
)

// Client requests accepted on the websocket.
const (
	requestHistory  = "request_history"
	startSimulation = "start_simulation"
	stopSimulation  = "stop_simulation"

	eventSimulationResult = "simulation_result"
)

type clientMessage struct {
	Type      string `json:"type"`
	Limit     int    `json:"limit"`
	SimType   string `json:"sim_type"`
	ConfigDir string `json:"config_dir"`
}

// handleWebsocket subscribes the connection to the broadcaster. The latest
// snapshot is sent first; frames requested by the client are interleaved with
// pushed ones by the single writer loop.
func (s *Server) handleWebsocket(c echo.Context) error {
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader has already replied
		s.log.Warn("websocket upgrade failed", "err", err)
		return nil
	}
	defer ws.Close()

	sub := s.b.Subscribe()
	defer sub.Close()
	log := s.log.With("client", sub.ID())
	log.Info("client connected")
	defer log.Info("client disconnected")

	replies := make(chan []byte, broadcast.DefaultBufferSize)
	quit := make(chan struct{})
	readerDone := make(chan struct{})
	defer close(quit)

	go func() {
		defer close(readerDone)
		for {
			_, msg, err := ws.ReadMessage()
			if err != nil {
				return
			}
			frame, ok := s.reply(c, msg)
			if !ok {
				continue
			}
			select {
			case replies <- frame:
			case <-quit:
				return
			}
		}
	}()

	for {
		var frame []byte
		select {
		case f, ok := <-sub.C():
			if !ok {
				ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "monitor stopping"),
					time.Now().Add(writeWait))
				return nil
			}
			frame = f
		case frame = <-replies:
		case <-readerDone:
			return nil
		}
		ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
			log.Debug("websocket write failed", "err", err)
			return nil
		}
	}
}

// reply answers one client message. Unknown messages are ignored.
func (s *Server) reply(c echo.Context, msg []byte) ([]byte, bool) {
	var req clientMessage
	if err := json.Unmarshal(msg, &req); err != nil {
		s.log.Debug("ignoring malformed client message", "err", err)
		return nil, false
	}
	var (
		typ  string
		data any
	)
	switch req.Type {
	case requestHistory:
		typ, data = broadcast.EventHistoryData, s.b.History(req.Limit)
	case startSimulation:
		if s.ctl == nil {
			return nil, false
		}
		res, _ := s.ctl.Start(c.Request().Context(), controller.StartRequest{Type: req.SimType, ConfigDir: req.ConfigDir})
		typ, data = eventSimulationResult, res
	case stopSimulation:
		if s.ctl == nil {
			return nil, false
		}
		res, _ := s.ctl.Stop()
		typ, data = eventSimulationResult, res
	default:
		return nil, false
	}
	frame, err := broadcast.EncodeFrame(typ, data)
	if err != nil {
		s.log.Warn("could not encode reply", "type", typ, "err", err)
		return nil, false
	}
	return frame, true
}
