package protocol

import (
	"fmt"
)

// MessageKind is the wire tag of a Protocol message.
type MessageKind uint8

const (
	// KindPullRequest asks a peer for records matching a filter.
	KindPullRequest MessageKind = iota

	// KindPullResponse answers a pull request.
	KindPullResponse

	// KindPushMessage actively forwards records to a peer.
	KindPushMessage

	// KindPruneMessage tells a peer to stop forwarding certain origins.
	KindPruneMessage

	// KindPingMessage is a liveness probe.
	KindPingMessage

	// KindPongMessage answers a ping.
	KindPongMessage
)

// MaxCrdsValuesPerMessage bounds the value list of push messages and pull
// responses. A well-formed sender never comes close, since the whole message
// must fit in one datagram.
const MaxCrdsValuesPerMessage = 4096

func (k MessageKind) String() string {
	switch k {
	case KindPullRequest:
		return "pull_request"
	case KindPullResponse:
		return "pull_response"
	case KindPushMessage:
		return "push_message"
	case KindPruneMessage:
		return "prune_message"
	case KindPingMessage:
		return "ping"
	case KindPongMessage:
		return "pong"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// PullRequest asks the receiver for CRDS values that match Filter and are not
// already represented in its bloom. Value carries the caller's own signed
// contact info so the receiver learns about the caller.
type PullRequest struct {
	Filter CrdsFilter
	Value  CrdsValue
}

// PullResponse returns CRDS values selected by a pull request.
type PullResponse struct {
	From   Pubkey
	Values []CrdsValue
}

// PushMessage actively forwards CRDS values to a peer.
type PushMessage struct {
	From   Pubkey
	Values []CrdsValue
}

// PruneMessage wraps signed prune data.
type PruneMessage struct {
	From Pubkey
	Data PruneData
}

// Protocol is the tagged union of wire messages. Exactly one payload pointer
// is set, matching Kind.
type Protocol struct {
	Kind         MessageKind
	PullRequest  *PullRequest  `codec:",omitempty"`
	PullResponse *PullResponse `codec:",omitempty"`
	PushMessage  *PushMessage  `codec:",omitempty"`
	PruneMessage *PruneMessage `codec:",omitempty"`
	Ping         *Ping         `codec:",omitempty"`
	Pong         *Pong         `codec:",omitempty"`
}

// NewPullRequest wraps a PullRequest in a Protocol envelope.
func NewPullRequest(filter CrdsFilter, value CrdsValue) *Protocol {
	return &Protocol{Kind: KindPullRequest, PullRequest: &PullRequest{Filter: filter, Value: value}}
}

// NewPullResponse wraps a PullResponse in a Protocol envelope.
func NewPullResponse(from Pubkey, values []CrdsValue) *Protocol {
	return &Protocol{Kind: KindPullResponse, PullResponse: &PullResponse{From: from, Values: values}}
}

// NewPushMessage wraps a PushMessage in a Protocol envelope.
func NewPushMessage(from Pubkey, values []CrdsValue) *Protocol {
	return &Protocol{Kind: KindPushMessage, PushMessage: &PushMessage{From: from, Values: values}}
}

// NewPruneMessage wraps signed prune data in a Protocol envelope.
func NewPruneMessage(from Pubkey, data PruneData) *Protocol {
	return &Protocol{Kind: KindPruneMessage, PruneMessage: &PruneMessage{From: from, Data: data}}
}

// NewPingMessage wraps a Ping in a Protocol envelope.
func NewPingMessage(ping *Ping) *Protocol {
	return &Protocol{Kind: KindPingMessage, Ping: ping}
}

// NewPongMessage wraps a Pong in a Protocol envelope.
func NewPongMessage(pong *Pong) *Protocol {
	return &Protocol{Kind: KindPongMessage, Pong: pong}
}

// payload returns the active payload pointer for encoding.
func (p *Protocol) payload() (interface{}, error) {
	switch p.Kind {
	case KindPullRequest:
		return p.PullRequest, nil
	case KindPullResponse:
		return p.PullResponse, nil
	case KindPushMessage:
		return p.PushMessage, nil
	case KindPruneMessage:
		return p.PruneMessage, nil
	case KindPingMessage:
		return p.Ping, nil
	case KindPongMessage:
		return p.Pong, nil
	default:
		return nil, fmt.Errorf("unknown message kind %d", p.Kind)
	}
}

// Encode frames the message as a one-byte kind tag followed by the
// codec-encoded payload.
func Encode(p *Protocol) ([]byte, error) {
	payload, err := p.payload()
	if err != nil {
		return nil, err
	}
	body, err := marshal(payload)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, 1+len(body))
	out = append(out, byte(p.Kind))
	out = append(out, body...)
	return out, nil
}

// Decode parses a datagram produced by Encode.
func Decode(data []byte) (*Protocol, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("empty message")
	}
	p := &Protocol{Kind: MessageKind(data[0])}
	body := data[1:]
	switch p.Kind {
	case KindPullRequest:
		p.PullRequest = new(PullRequest)
		return p, unmarshal(body, p.PullRequest)
	case KindPullResponse:
		p.PullResponse = new(PullResponse)
		return p, unmarshal(body, p.PullResponse)
	case KindPushMessage:
		p.PushMessage = new(PushMessage)
		return p, unmarshal(body, p.PushMessage)
	case KindPruneMessage:
		p.PruneMessage = new(PruneMessage)
		return p, unmarshal(body, p.PruneMessage)
	case KindPingMessage:
		p.Ping = new(Ping)
		return p, unmarshal(body, p.Ping)
	case KindPongMessage:
		p.Pong = new(Pong)
		return p, unmarshal(body, p.Pong)
	default:
		return nil, fmt.Errorf("unknown message kind %d", data[0])
	}
}

// Sanitize enforces kind-specific structural limits before any signature
// check is attempted.
func (p *Protocol) Sanitize() error {
	switch p.Kind {
	case KindPullRequest:
		if p.PullRequest == nil {
			return fmt.Errorf("pull_request payload missing")
		}
		if err := p.PullRequest.Filter.Sanitize(); err != nil {
			return err
		}
		return p.PullRequest.Value.Data.Sanitize()
	case KindPullResponse:
		if p.PullResponse == nil {
			return fmt.Errorf("pull_response payload missing")
		}
		return sanitizeValues(p.PullResponse.Values)
	case KindPushMessage:
		if p.PushMessage == nil {
			return fmt.Errorf("push_message payload missing")
		}
		return sanitizeValues(p.PushMessage.Values)
	case KindPruneMessage:
		if p.PruneMessage == nil {
			return fmt.Errorf("prune_message payload missing")
		}
		return p.PruneMessage.Data.Sanitize()
	case KindPingMessage:
		if p.Ping == nil {
			return fmt.Errorf("ping payload missing")
		}
		return nil
	case KindPongMessage:
		if p.Pong == nil {
			return fmt.Errorf("pong payload missing")
		}
		return nil
	default:
		return fmt.Errorf("unknown message kind %d", p.Kind)
	}
}

func sanitizeValues(values []CrdsValue) error {
	if len(values) == 0 {
		return fmt.Errorf("empty value list")
	}
	if len(values) > MaxCrdsValuesPerMessage {
		return fmt.Errorf("value list too long: %d", len(values))
	}
	for i := range values {
		if err := values[i].Data.Sanitize(); err != nil {
			return err
		}
	}
	return nil
}

// VerifySignatures checks every signature the message carries.
func (p *Protocol) VerifySignatures() bool {
	switch p.Kind {
	case KindPullRequest:
		return p.PullRequest.Value.Verify()
	case KindPullResponse:
		return verifyValues(p.PullResponse.Values)
	case KindPushMessage:
		return verifyValues(p.PushMessage.Values)
	case KindPruneMessage:
		return p.PruneMessage.Data.Verify()
	case KindPingMessage:
		return p.Ping.Verify()
	case KindPongMessage:
		return p.Pong.Verify()
	default:
		return false
	}
}

func verifyValues(values []CrdsValue) bool {
	for i := range values {
		if !values[i].Verify() {
			return false
		}
	}
	return true
}
