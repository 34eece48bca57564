package state

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/pulsebeacon/pulse/foundation/beacon/database"
	"github.com/pulsebeacon/pulse/foundation/beacon/peer"
)

const baseURL = "http://%s/v1/node"

// requestTimeout bounds a single peer request. A timeout cancels only that
// request, never the relationship with the peer.
const requestTimeout = 10 * time.Second

// =============================================================================

// NetSendBlockToPeers announces a newly accepted block to all known peers.
func (s *State) NetSendBlockToPeers(block database.Block) error {
	s.evHandler("state: NetSendBlockToPeers: started")
	defer s.evHandler("state: NetSendBlockToPeers: completed")

	// The origin rides along so a peer that can't connect the block yet
	// knows who to sync headers from.
	announcement := struct {
		Origin string             `json:"origin"`
		Block  database.BlockData `json:"block"`
	}{
		Origin: s.host,
		Block:  database.NewBlockData(block),
	}

	for _, pr := range s.KnownExternalPeers() {
		url := fmt.Sprintf("%s/block/announce", fmt.Sprintf(baseURL, pr.Host))

		if err := send(http.MethodPost, url, announcement, nil); err != nil {
			s.evHandler("state: NetSendBlockToPeers: WARNING: %s: %s", pr.Host, err)
			continue
		}

		s.evHandler("state: NetSendBlockToPeers: sent to peer[%s]", pr.Host)
	}

	return nil
}

// NetRequestPeerStatus asks a peer for its chain tip and its peer list.
// This doubles as the liveness ping.
func (s *State) NetRequestPeerStatus(pr peer.Peer) (peer.Status, error) {
	s.evHandler("state: NetRequestPeerStatus: started: %s", pr.Host)
	defer s.evHandler("state: NetRequestPeerStatus: completed: %s", pr.Host)

	url := fmt.Sprintf("%s/status", fmt.Sprintf(baseURL, pr.Host))

	var ps peer.Status
	if err := send(http.MethodGet, url, nil, &ps); err != nil {
		return peer.Status{}, err
	}

	s.evHandler("state: NetRequestPeerStatus: peer[%s]: height[%d] peers[%d]", pr.Host, ps.LatestBlockNumber, len(ps.KnownPeers))

	return ps, nil
}

// NetRequestHeaders asks a peer for the headers following our locator, in
// bounded batches. The locator is dense near our tip and exponentially
// sparser toward genesis so the peer can find the common ancestor cheaply.
func (s *State) NetRequestHeaders(pr peer.Peer) ([]database.Header, error) {
	s.evHandler("state: NetRequestHeaders: started: %s", pr.Host)
	defer s.evHandler("state: NetRequestHeaders: completed: %s", pr.Host)

	locator := s.db.Locator()

	request := struct {
		Locator []chainhash.Hash `json:"locator"`
	}{
		Locator: locator,
	}

	url := fmt.Sprintf("%s/headers/list", fmt.Sprintf(baseURL, pr.Host))

	var headers []database.Header
	if err := send(http.MethodPost, url, request, &headers); err != nil {
		return nil, err
	}

	s.evHandler("state: NetRequestHeaders: peer[%s]: headers[%d]", pr.Host, len(headers))

	return headers, nil
}

// NetRequestBlock asks a peer for the block body with the specified hash.
// The request is accounted against the peer so body fetches can be load
// balanced onto the least busy peer.
func (s *State) NetRequestBlock(pr peer.Peer, hash chainhash.Hash) (database.Block, error) {
	s.knownPeers.BeginRequest(pr)
	defer s.knownPeers.EndRequest(pr)

	url := fmt.Sprintf("%s/block/%s", fmt.Sprintf(baseURL, pr.Host), hash)

	var blockData database.BlockData
	if err := send(http.MethodGet, url, nil, &blockData); err != nil {
		return database.Block{}, err
	}

	block, err := database.ToBlock(blockData)
	if err != nil {
		return database.Block{}, err
	}

	// A body whose identity doesn't match what we asked for counts as a
	// protocol violation by the serving peer.
	if block.Hash() != hash {
		return database.Block{}, fmt.Errorf("peer %s served block %s, asked for %s", pr.Host, block.Hash(), hash)
	}

	return block, nil
}

// NetSubmitSelf registers this node with a peer so it starts receiving
// announcements.
func (s *State) NetSubmitSelf(pr peer.Peer) error {
	url := fmt.Sprintf("%s/peers", fmt.Sprintf(baseURL, pr.Host))
	return send(http.MethodPost, url, peer.New(s.host), nil)
}

// =============================================================================

// send is a helper function to send an HTTP request to a node.
func send(method string, url string, dataSend any, dataRecv any) error {
	var req *http.Request

	switch {
	case dataSend != nil:
		data, err := json.Marshal(dataSend)
		if err != nil {
			return err
		}
		req, err = http.NewRequest(method, url, bytes.NewReader(data))
		if err != nil {
			return err
		}

	default:
		var err error
		req, err = http.NewRequest(method, url, nil)
		if err != nil {
			return err
		}
	}

	client := http.Client{
		Timeout: requestTimeout,
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if resp.StatusCode != http.StatusOK {
		msg, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		return errors.New(string(msg))
	}

	if dataRecv != nil {
		if err := json.NewDecoder(resp.Body).Decode(dataRecv); err != nil {
			return err
		}
	}

	return nil
}
