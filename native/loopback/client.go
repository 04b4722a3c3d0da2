package loopback

import (
	"encoding/json"
	"time"
)

// Client is the built-in "client" module.
type Client struct {
	registry *Registry
}

func (c *Client) Name() string { return "client" }

type ResultOfVersion struct {
	Version string `json:"version"`
}

type ResultOfGetAPIReference struct {
	API []string `json:"api"`
}

type ResultOfPing struct {
	Pong bool `json:"pong"`
}

type ParamsOfStream struct {
	Payload json.RawMessage `json:"payload,omitempty"`
	Count   int             `json:"count"`
	// DelayMs pauses between notifications.
	DelayMs int `json:"delay_ms,omitempty"`
}

type StreamItem struct {
	Payload json.RawMessage `json:"payload,omitempty"`
	Index   int             `json:"index"`
}

type ResultOfStream struct {
	Sent int `json:"sent"`
}

// Version returns the service version.
func (c *Client) Version(_ *Context, _ json.RawMessage) (ResultOfVersion, error) {
	return ResultOfVersion{Version: Version}, nil
}

// GetAPIReference lists every registered function.
func (c *Client) GetAPIReference(_ *Context, _ json.RawMessage) (ResultOfGetAPIReference, error) {
	return ResultOfGetAPIReference{API: c.registry.Names()}, nil
}

// Ping answers {"pong":true}.
func (c *Client) Ping(_ *Context, _ json.RawMessage) (ResultOfPing, error) {
	return ResultOfPing{Pong: true}, nil
}

// Echo returns its params unchanged.
func (c *Client) Echo(_ *Context, params json.RawMessage) (json.RawMessage, error) {
	if len(params) == 0 {
		return json.RawMessage("null"), nil
	}
	return params, nil
}

// Stream sends Count notifications and then a result.
func (c *Client) Stream(_ *Context, p ParamsOfStream, r *Responder) {
	if p.Count < 0 {
		r.Fail(CodeInvalidParams, "Invalid parameters: count must not be negative")
		return
	}
	for i := 0; i < p.Count; i++ {
		if i > 0 && p.DelayMs > 0 {
			time.Sleep(time.Duration(p.DelayMs) * time.Millisecond)
		}
		if err := r.Notify(StreamItem{Index: i, Payload: p.Payload}); err != nil {
			return
		}
	}
	r.Result(ResultOfStream{Sent: p.Count})
}
