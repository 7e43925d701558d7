package stream

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

const (
	methodSubscribe   = "SUBSCRIBE"
	methodUnsubscribe = "UNSUBSCRIBE"

	tickerEvent  = "24hrTicker"
	streamSuffix = "@ticker"
)

type request struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

// encodeRequest builds a subscribe or unsubscribe frame for symbol's ticker
// stream.
func encodeRequest(method, symbol string, id int64) ([]byte, error) {
	return json.Marshal(request{
		Method: method,
		Params: []string{symbol + streamSuffix},
		ID:     id,
	})
}

type frameKind int

const (
	frameIgnored frameKind = iota
	frameTicker
	frameAck
)

type frame struct {
	kind   frameKind
	id     int64
	ticker Ticker
}

// decodeFrame classifies one inbound frame. Server error frames and
// undecodable payloads are returned as *ProtocolError.
//
// Keys are matched exactly: the ticker payload carries fields that differ
// only in case ("c" close price, "C" close time), which struct decoding
// would conflate.
func decodeFrame(data []byte) (frame, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return frame{}, &ProtocolError{Msg: "malformed frame", Err: err}
	}

	if msg, ok := raw["error"]; ok {
		var body struct {
			Code int    `json:"code"`
			Msg  string `json:"msg"`
		}
		if err := json.Unmarshal(msg, &body); err != nil {
			return frame{}, &ProtocolError{Msg: "malformed error frame", Err: err}
		}
		return frame{}, &ProtocolError{Code: body.Code, Msg: body.Msg}
	}

	if _, ok := raw["result"]; ok {
		f := frame{kind: frameAck}
		if id, ok := raw["id"]; ok {
			_ = json.Unmarshal(id, &f.id)
		}
		return f, nil
	}

	var event string
	if e, ok := raw["e"]; ok {
		if err := json.Unmarshal(e, &event); err != nil {
			return frame{}, &ProtocolError{Msg: "malformed event type", Err: err}
		}
	}
	if event != tickerEvent {
		return frame{kind: frameIgnored}, nil
	}

	t, err := decodeTicker(raw)
	if err != nil {
		return frame{}, err
	}
	return frame{kind: frameTicker, ticker: t}, nil
}

func decodeTicker(raw map[string]json.RawMessage) (Ticker, error) {
	var (
		t         Ticker
		eventTime int64
	)
	if err := field(raw, "s", &t.Symbol); err != nil {
		return Ticker{}, err
	}
	if err := field(raw, "E", &eventTime); err != nil {
		return Ticker{}, err
	}
	for key, dst := range map[string]*float64{
		"c": &t.Price,
		"p": &t.PriceChange,
		"P": &t.PriceChangePercent,
		"v": &t.Volume,
	} {
		var s string
		if err := field(raw, key, &s); err != nil {
			return Ticker{}, err
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Ticker{}, &ProtocolError{Msg: fmt.Sprintf("ticker field %q", key), Err: err}
		}
		*dst = v
	}
	t.Timestamp = time.UnixMilli(eventTime).UTC()
	return t, nil
}

func field(raw map[string]json.RawMessage, key string, dst any) error {
	v, ok := raw[key]
	if !ok {
		return &ProtocolError{Msg: fmt.Sprintf("ticker field %q missing", key)}
	}
	if err := json.Unmarshal(v, dst); err != nil {
		return &ProtocolError{Msg: fmt.Sprintf("ticker field %q", key), Err: err}
	}
	return nil
}
