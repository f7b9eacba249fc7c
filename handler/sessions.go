package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"marketing-copilot/internal/domain"
	"marketing-copilot/internal/usecase"
)

type quickPromptsResponse struct {
	QuickPrompts []string `json:"quickPrompts"`
}

type unlockRequest struct {
	Credential string `json:"credential"`
}

type textRequest struct {
	Text string `json:"text"`
}

type messageResponse struct {
	Reply    domain.Turn     `json:"reply"`
	Snapshot domain.Snapshot `json:"snapshot"`
}

func (h *Handler) listQuickPrompts(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, quickPromptsResponse{QuickPrompts: usecase.QuickPrompts()})
}

func (h *Handler) createSession(w http.ResponseWriter, _ *http.Request) {
	sess := h.sessions.Create()
	writeJSON(w, http.StatusCreated, sess.Snapshot())
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.session(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (h *Handler) endSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.End(chi.URLParam(r, "sessionID")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) unlock(w http.ResponseWriter, r *http.Request) {
	sess, err := h.session(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req unlockRequest
	if err := decodeBody(r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}
	snap, err := sess.Unlock(req.Credential)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) setInput(w http.ResponseWriter, r *http.Request) {
	sess, conv, err := h.conversation(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req textRequest
	if err := decodeBody(r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}
	conv.SetInput(req.Text)
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (h *Handler) selectQuickPrompt(w http.ResponseWriter, r *http.Request) {
	sess, conv, err := h.conversation(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		h.writeError(w, r, &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "unknown_quick_prompt", Err: err})
		return
	}
	if _, err := conv.SelectQuickPrompt(index); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

// submit answers once the exchange has completed. An empty text submits the
// input buffer.
func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	sess, conv, err := h.conversation(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req textRequest
	if err := decodeBody(r, &req, true); err != nil {
		h.writeError(w, r, err)
		return
	}

	var reply domain.Turn
	if req.Text == "" {
		reply, err = conv.SubmitInput(r.Context())
	} else {
		reply, err = conv.Submit(r.Context(), req.Text)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Reply: reply, Snapshot: sess.Snapshot()})
}

func (h *Handler) session(r *http.Request) (*usecase.Session, error) {
	return h.sessions.Get(chi.URLParam(r, "sessionID"))
}

func (h *Handler) conversation(r *http.Request) (*usecase.Session, *usecase.Conversation, error) {
	sess, err := h.session(r)
	if err != nil {
		return nil, nil, err
	}
	conv, err := sess.Conversation()
	if err != nil {
		return nil, nil, err
	}
	return sess, conv, nil
}
