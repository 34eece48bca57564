package public

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/pulsebeacon/pulse/foundation/beacon/state"
	"github.com/pulsebeacon/pulse/foundation/events"
	"github.com/pulsebeacon/pulse/foundation/web"
	"go.uber.org/zap"
)

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Log   *zap.SugaredLogger
	State *state.State
	Evts  *events.Events
}

// Routes binds all the public routes.
func Routes(app *web.App, cfg Config) {
	pbl := Handlers{
		Log:   cfg.Log,
		State: cfg.State,
		WS:    websocket.Upgrader{},
		Evts:  cfg.Evts,
	}

	const version = "v1"

	app.Handle(http.MethodGet, version, "/events", pbl.Events)
	app.Handle(http.MethodGet, version, "/genesis/list", pbl.Genesis)
	app.Handle(http.MethodGet, version, "/chain/tip", pbl.Tip)
	app.Handle(http.MethodGet, version, "/chain/header/:height", pbl.HeaderByHeight)
	app.Handle(http.MethodGet, version, "/chain/block/:hash", pbl.BlockByHash)
	app.Handle(http.MethodGet, version, "/beacon/:height", pbl.Beacon)
}
