package handlers

import (
	"context"
	"net/http"

	"gomultibridge/engine"
	"gomultibridge/fees"
	"gomultibridge/logger"
	"gomultibridge/registry"
	"gomultibridge/submission"
	"gomultibridge/types"

	"github.com/gorilla/websocket"
)

// Engine is what the HTTP layer needs from engine.Engine
type Engine interface {
	Quote(ctx context.Context, params types.TransferParams) (*engine.Quote, error)
	Submit(ctx context.Context, params types.TransferParams) <-chan submission.Event
	ListOngoing(ctx context.Context) ([]*types.OngoingTransfer, error)
	ListCompleted(ctx context.Context) ([]*types.CompletedTransfer, error)
	State(ctx context.Context) (engine.State, error)
}

type API struct {
	engine   Engine
	registry registry.Lookup
	balances fees.BalanceSource
	log      logger.Logger
	upgrader websocket.Upgrader
}

func NewAPI(eng Engine, reg registry.Lookup, balances fees.BalanceSource, log logger.Logger) *API {
	if log == nil {
		log = logger.NoopLogger{}
	}
	return &API{
		engine:   eng,
		registry: reg,
		balances: balances,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}
