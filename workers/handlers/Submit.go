package handlers

import (
	"context"
	"net/http"
	"time"

	"gomultibridge/submission"
	"gomultibridge/types"

	"github.com/gorilla/websocket"
)

// Submit runs a transfer to its final event and returns every event of the run
func (a *API) Submit(w http.ResponseWriter, r *http.Request) {
	params, bad := decodeTransfer(r.Body)
	if bad != nil {
		responseJSON(w, bad, http.StatusBadRequest)
		return
	}

	var events []submission.Event
	for e := range a.engine.Submit(r.Context(), params) {
		events = append(events, e)
	}
	last := events[len(events)-1]

	code := http.StatusOK
	switch last.Outcome {
	case submission.OutcomeCancelled:
		code = statusFor(types.ErrCodeUserCancelled)
	case submission.OutcomeError:
		code = http.StatusInternalServerError
		if last.Error != nil {
			code = statusFor(last.Error.Code)
		}
	}

	responseJSON(w, &APISubmitResponse{
		Status:     string(last.Outcome),
		Outcome:    last.Outcome,
		TransferID: last.TransferID,
		Events:     events,
	}, code)
}

type wsCommand struct {
	Action string `json:"action"`
}

const wsWriteWait = 10 * time.Second

// SubmitWS streams submission events over a websocket. The first client
// message is the transfer request; a later {"action":"cancel"} or closing
// the socket cancels the run unless it has reached Sending.
func (a *API) SubmitWS(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.log.Warn("websocket upgrade failed", map[string]any{"error": err})
		return
	}
	defer conn.Close()

	var req TransferRequest
	if err := conn.ReadJSON(&req); err != nil {
		a.writeWS(conn, &APIResponse{Status: "error", Code: types.ErrCodeInvalidParams, Message: "Cannot unmarshal input JSON"})
		return
	}
	params, bad := req.Params()
	if bad != nil {
		a.writeWS(conn, bad)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		for {
			var cmd wsCommand
			if err := conn.ReadJSON(&cmd); err != nil {
				cancel()
				return
			}
			if cmd.Action == "cancel" {
				cancel()
			}
		}
	}()

	for e := range a.engine.Submit(ctx, params) {
		a.writeWS(conn, e)
	}
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (a *API) writeWS(conn *websocket.Conn, v interface{}) {
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteJSON(v); err != nil {
		a.log.Debug("websocket write failed", map[string]any{"error": err})
	}
}
