package private

import (
	"net/http"

	"github.com/pulsebeacon/pulse/foundation/beacon/state"
	"github.com/pulsebeacon/pulse/foundation/web"
	"go.uber.org/zap"
)

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Log   *zap.SugaredLogger
	State *state.State
}

// Routes binds all the node to node routes.
func Routes(app *web.App, cfg Config) {
	prv := Handlers{
		Log:   cfg.Log,
		State: cfg.State,
	}

	const version = "v1"

	app.Handle(http.MethodGet, version, "/node/status", prv.Status)
	app.Handle(http.MethodPost, version, "/node/peers", prv.SubmitPeer)
	app.Handle(http.MethodPost, version, "/node/headers/list", prv.HeadersAfter)
	app.Handle(http.MethodGet, version, "/node/block/:hash", prv.BlockByHash)
	app.Handle(http.MethodPost, version, "/node/block/announce", prv.AnnounceBlock)
}
