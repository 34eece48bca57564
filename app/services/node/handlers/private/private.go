// Package private maintains the group of handlers for node to node access.
package private

import (
	"context"
	"fmt"
	"net/http"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/pulsebeacon/pulse/business/web/errs"
	"github.com/pulsebeacon/pulse/foundation/beacon/database"
	"github.com/pulsebeacon/pulse/foundation/beacon/peer"
	"github.com/pulsebeacon/pulse/foundation/beacon/state"
	"github.com/pulsebeacon/pulse/foundation/web"
	"go.uber.org/zap"
)

// Handlers manages the set of node to node endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
}

// Status returns the current status of the node: our tip and our peers. It
// doubles as the liveness ping between nodes.
func (h Handlers) Status(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	status, err := h.State.QueryStatus()
	if err != nil {
		return err
	}

	return web.Respond(ctx, w, status, http.StatusOK)
}

// SubmitPeer registers the caller in our known peer set so it starts
// receiving announcements.
func (h Handlers) SubmitPeer(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var pr peer.Peer
	if err := web.Decode(r, &pr); err != nil {
		return errs.NewTrusted(fmt.Errorf("unable to decode payload: %w", err), http.StatusBadRequest)
	}

	if h.State.AddKnownPeer(pr) {
		h.Log.Infow("adding peer", "traceid", v.TraceID, "host", pr.Host)
	}

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "accepted",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// HeadersAfter returns a batch of canonical headers following the caller's
// locator. The caller walks the chain forward by repeating the request with
// an updated locator until the batch comes back short.
func (h Handlers) HeadersAfter(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var request struct {
		Locator []chainhash.Hash `json:"locator"`
	}
	if err := web.Decode(r, &request); err != nil {
		return errs.NewTrusted(fmt.Errorf("unable to decode payload: %w", err), http.StatusBadRequest)
	}

	headers, err := h.State.QueryHeadersAfter(request.Locator)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	return web.Respond(ctx, w, headers, http.StatusOK)
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

// AnnounceBlock accepts a block pushed by a peer that just extended its
// chain. If the block doesn't connect to anything we know, the announcing
// peer is ahead of us and a header sync against it is scheduled.
func (h Handlers) AnnounceBlock(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var announcement struct {
		Origin string             `json:"origin"`
		Block  database.BlockData `json:"block"`
	}
	if err := web.Decode(r, &announcement); err != nil {
		return errs.NewTrusted(fmt.Errorf("unable to decode payload: %w", err), http.StatusBadRequest)
	}

	block, err := database.ToBlock(announcement.Block)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	status, err := h.State.ProcessPeerBlock(block)
	switch status {
	case database.Rejected:
		h.Log.Infow("announce rejected", "traceid", v.TraceID, "origin", announcement.Origin, "block", block.Hash(), "ERROR", err)
		return errs.NewTrusted(err, http.StatusBadRequest)

	case database.Orphaned:
		if h.State.Worker != nil {
			h.State.Worker.SignalSync(peer.New(announcement.Origin))
		}

	default:
		if err != nil {
			return err
		}
	}

	resp := struct {
		Status string `json:"status"`
	}{
		Status: status.String(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}
