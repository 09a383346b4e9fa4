package onebot

import (
	"context"
	"encoding/json"
	"log/slog"
)

// frameHead is the minimal shape needed to classify an inbound frame.
// A frame carrying both an echo token and a status is an action
// response; everything else is an event.
type frameHead struct {
	Echo   string `json:"echo"`
	Status string `json:"status"`
}

// runRouter consumes inbound frames from conn until the connection
// closes or ctx is cancelled. Responses go to the caller's waiters,
// events go to the queue in arrival order. Malformed frames are
// dropped. Returns the read error that ended the loop.
func runRouter(ctx context.Context, conn *Conn, caller *Caller, events chan<- Event) error {
	for {
		data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		var head frameHead
		if err := json.Unmarshal(data, &head); err != nil {
			slog.Debug("onebot: dropping malformed frame", "error", err)
			continue
		}

		if head.Echo != "" && head.Status != "" {
			var resp Response
			if err := json.Unmarshal(data, &resp); err != nil {
				slog.Debug("onebot: dropping malformed response", "error", err)
				continue
			}
			caller.deliver(&resp)
			continue
		}

		var evt Event
		if err := json.Unmarshal(data, &evt); err != nil {
			slog.Debug("onebot: dropping malformed event", "error", err)
			continue
		}
		evt.Raw = append(json.RawMessage(nil), data...)

		select {
		case events <- evt:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
