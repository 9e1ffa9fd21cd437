package worker

import (
	"context"

	"github.com/spec-kit/chatpay-service/internal/broadcast"
)

// StartBroadcastWorker wires the broadcaster into the event stream and starts
// its publish drain. Publishing runs entirely off the request path.
func StartBroadcastWorker(ctx context.Context, broadcaster *broadcast.Broadcaster) {
	if broadcaster == nil {
		return
	}
	broadcaster.RegisterHandlers()
	go broadcaster.Run(ctx)
}
