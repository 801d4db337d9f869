package botapi

import (
	"context"
	"time"

	"github.com/berkus/teloxide/core/listener"
	"github.com/berkus/teloxide/core/update"
)

// Client is the polling listener's fetch collaborator.
var _ listener.Fetcher = (*Client)(nil)

// getUpdatesRequest is the wire form of one fetch call. Pointer fields
// distinguish "absent" from zero: a nil offset lets the remote choose the
// starting point, a nil filter keeps whatever filter the remote already has,
// and a present empty filter clears it.
type getUpdatesRequest struct {
	Offset         *int64    `json:"offset,omitempty"`
	Limit          int       `json:"limit,omitempty"`
	Timeout        int       `json:"timeout"`
	AllowedUpdates *[]string `json:"allowed_updates,omitempty"`
}

// FetchUpdates implements listener.Fetcher over the getUpdates call. The
// HTTP deadline exceeds the requested long-poll hold, so a healthy remote
// always answers before the transport gives up.
func (c *Client) FetchUpdates(ctx context.Context, req listener.FetchRequest) ([]update.Update, error) {
	wire := getUpdatesRequest{
		Timeout: int(req.Timeout / time.Second),
	}
	if req.Offset > 0 {
		offset := req.Offset
		wire.Offset = &offset
	}
	if req.Limit > 0 {
		wire.Limit = req.Limit
	}
	if req.AllowedUpdates != nil {
		kinds := update.Strings(req.AllowedUpdates)
		wire.AllowedUpdates = &kinds
	}

	callCtx, cancel := context.WithTimeout(ctx, req.Timeout+c.requestTimeout)
	defer cancel()

	var updates []update.Update
	if err := c.invokeJSON(callCtx, "getUpdates", wire, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}
