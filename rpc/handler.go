package rpc

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/cantata-io/cantata/core"
	"github.com/cantata-io/cantata/engine"
	"github.com/cantata-io/cantata/feed"
	"github.com/cantata-io/cantata/indexer"
	"github.com/cantata-io/cantata/storage"
)

// Handler holds all dependencies needed to serve RPC methods.
type Handler struct {
	engine  *engine.Engine
	queue   *feed.Queue
	store   *storage.Store
	indexer *indexer.Indexer
}

// NewHandler creates an RPC Handler. store and idx may be nil; the methods
// backed by them then report an internal error.
func NewHandler(eng *engine.Engine, queue *feed.Queue, store *storage.Store, idx *indexer.Indexer) *Handler {
	return &Handler{engine: eng, queue: queue, store: store, indexer: idx}
}

// Dispatch routes an RPC request to the correct method.
func (h *Handler) Dispatch(req Request) Response {
	switch req.Method {
	case "sendInteraction":
		return h.sendInteraction(req)

	case "getState":
		return h.getState(req)

	case "getReceipt":
		return h.getReceipt(req)

	case "getHeight":
		return okResponse(req.ID, h.engine.Height())

	case "getStateRoot":
		return h.getStateRoot(req)

	case "getTokensByOwner":
		return h.getTokensByOwner(req)

	case "getQueueSize":
		return okResponse(req.ID, h.queue.Size())

	default:
		return errResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
	}
}

// sendInteraction enqueues one interaction for the apply loop. The id is
// assigned server-side; clients poll getReceipt with it.
func (h *Handler) sendInteraction(req Request) Response {
	var params struct {
		Contract string          `json:"contract"`
		Caller   string          `json:"caller"`
		Height   int64           `json:"height,omitempty"`
		Random   string          `json:"random,omitempty"`
		Input    json.RawMessage `json:"input"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, "params: "+err.Error())
	}
	if len(params.Input) == 0 {
		return errResponse(req.ID, CodeInvalidParams, "input is required")
	}
	if _, err := core.Function(params.Input); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}

	in := &core.Interaction{
		ID:       uuid.NewString(),
		Contract: params.Contract,
		Caller:   params.Caller,
		Height:   params.Height,
		Random:   params.Random,
		Input:    params.Input,
	}
	if err := h.queue.Add(in); err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, map[string]string{"interaction_id": in.ID})
}

func (h *Handler) getState(req Request) Response {
	var params struct {
		Contract string `json:"contract"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.Contract == "" {
		return errResponse(req.ID, CodeInvalidParams, "contract is required")
	}
	doc, err := h.engine.State(params.Contract)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, json.RawMessage(doc))
}

func (h *Handler) getReceipt(req Request) Response {
	var params struct {
		InteractionID string `json:"interaction_id"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.InteractionID == "" {
		return errResponse(req.ID, CodeInvalidParams, "interaction_id is required")
	}
	if h.store == nil {
		return errResponse(req.ID, CodeInternalError, "no persistent store")
	}
	entry, err := h.store.EntryByInteraction(params.InteractionID)
	if errors.Is(err, core.ErrNotFound) {
		// Still queued, or never submitted.
		if _, pending := h.queue.Get(params.InteractionID); pending {
			return okResponse(req.ID, map[string]any{"status": "pending"})
		}
		return errResponse(req.ID, CodeInternalError, "unknown interaction")
	}
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, entry.Receipt)
}

func (h *Handler) getStateRoot(req Request) Response {
	root, err := h.engine.StateRoot()
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, map[string]string{"state_root": root})
}

func (h *Handler) getTokensByOwner(req Request) Response {
	var params struct {
		Owner string `json:"owner"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.Owner == "" {
		return errResponse(req.ID, CodeInvalidParams, "owner is required")
	}
	if h.indexer == nil {
		return errResponse(req.ID, CodeInternalError, "indexer disabled")
	}
	ids, err := h.indexer.GetTokensByOwner(params.Owner)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, ids)
}
