// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/websocket"
	"github.com/pulsebeacon/pulse/business/web/errs"
	"github.com/pulsebeacon/pulse/foundation/beacon/database"
	"github.com/pulsebeacon/pulse/foundation/beacon/state"
	"github.com/pulsebeacon/pulse/foundation/events"
	"github.com/pulsebeacon/pulse/foundation/web"
	"go.uber.org/zap"
)

// Handlers manages the set of public endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	WS    websocket.Upgrader
	Evts  *events.Events
}

// Events handles a web socket to provide events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	ch := h.Evts.Acquire(v.TraceID)
	defer h.Evts.Release(v.TraceID)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, wd := <-ch:
			if !wd {
				return nil
			}

			if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return err
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// Genesis returns the genesis information.
func (h Handlers) Genesis(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	gen := h.State.Genesis()
	return web.Respond(ctx, w, gen, http.StatusOK)
}

// Tip returns the canonical chain tip.
func (h Handlers) Tip(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	header, err := h.State.QueryBestHeader()
	if err != nil {
		return err
	}

	resp := tip{
		Height: header.Number,
		Hash:   header.Hash().String(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// HeaderByHeight returns the canonical header at the specified height.
func (h Handlers) HeaderByHeight(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	height, err := strconv.ParseUint(web.Param(r, "height"), 10, 64)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	header, err := h.State.QueryHeaderByHeight(height)
	if err != nil {
		return errs.NewTrusted(err, http.StatusNotFound)
	}

	resp := headerInfo{
		Hash:   header.Hash().String(),
		Header: header,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// BlockByHash returns the full block with the specified hash.
func (h Handlers) BlockByHash(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	hash, err := chainhash.NewHashFromStr(web.Param(r, "hash"))
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	block, err := h.State.QueryBlockByHash(*hash)
	if err != nil {
		return errs.NewTrusted(err, http.StatusNotFound)
	}

	return web.Respond(ctx, w, database.NewBlockData(block), http.StatusOK)
}

// Beacon returns the random beacon output for the specified height.
func (h Handlers) Beacon(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	height, err := strconv.ParseUint(web.Param(r, "height"), 10, 64)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	output, err := h.State.QueryBeaconOutput(height)
	if err != nil {
		return errs.NewTrusted(err, http.StatusNotFound)
	}

	header, err := h.State.QueryHeaderByHeight(height)
	if err != nil {
		return errs.NewTrusted(err, http.StatusNotFound)
	}

	resp := beaconInfo{
		Height: height,
		Hash:   header.Hash().String(),
		Output: hexutil.Encode(output),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}
