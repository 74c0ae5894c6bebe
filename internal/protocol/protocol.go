// Package protocol defines the messages exchanged between a kvs client and a server.
//
// Both messages are tagged variants: the `type` discriminant selects which of the
// remaining fields are meaningful. The discriminant values and the field names are
// part of the wire contract and are shared by every payload serializer.
//
//	{"type":"Get","key":"k"}                {"type":"Get","value":"v"}
//	{"type":"Set","key":"k","value":"v"}    {"type":"Set"}
//	{"type":"Remove","key":"k"}             {"type":"Remove"}
//	                                        {"type":"Err","message":"boom"}
package protocol

import (
	"unicode/utf8"

	"github.com/hyp3rd/ewrap"

	"github.com/hyp3rd/kvs/internal/sentinel"
)

// Tag is the discriminant of a wire message.
type Tag string

// Wire tags. Requests use Get, Set and Remove; responses add Err.
const (
	TagGet    Tag = "Get"
	TagSet    Tag = "Set"
	TagRemove Tag = "Remove"
	TagErr    Tag = "Err"
)

func (t Tag) String() string { return string(t) }

// Request is a client request. Value is only set for TagSet.
type Request struct {
	Type  Tag     `codec:"type"            json:"type"            msgpack:"type"`
	Key   string  `codec:"key"             json:"key"             msgpack:"key"`
	Value *string `codec:"value,omitempty" json:"value,omitempty" msgpack:"value"`
}

// Response is a server response. Value is only meaningful for TagGet, where nil
// means the key is absent; Message is only meaningful for TagErr.
type Response struct {
	Type    Tag     `codec:"type"              json:"type"              msgpack:"type"`
	Value   *string `codec:"value,omitempty"   json:"value,omitempty"   msgpack:"value"`
	Message string  `codec:"message,omitempty" json:"message,omitempty" msgpack:"message"`
}

// GetRequest builds a Get request.
func GetRequest(key string) Request { return Request{Type: TagGet, Key: key} }

// SetRequest builds a Set request.
func SetRequest(key, value string) Request { return Request{Type: TagSet, Key: key, Value: &value} }

// RemoveRequest builds a Remove request.
func RemoveRequest(key string) Request { return Request{Type: TagRemove, Key: key} }

// GetResponse builds a Get response; found=false encodes an absent value.
func GetResponse(value string, found bool) Response {
	if !found {
		return Response{Type: TagGet}
	}

	return Response{Type: TagGet, Value: &value}
}

// SetResponse builds a Set acknowledgement.
func SetResponse() Response { return Response{Type: TagSet} }

// RemoveResponse builds a Remove acknowledgement.
func RemoveResponse() Response { return Response{Type: TagRemove} }

// ErrResponse builds an error response carrying msg.
func ErrResponse(msg string) Response { return Response{Type: TagErr, Message: msg} }

// Validate checks that the request carries a known tag and the fields that tag requires.
func (r *Request) Validate() error {
	switch r.Type {
	case TagGet, TagRemove:
	case TagSet:
		if r.Value == nil {
			return ewrap.Wrap(sentinel.ErrParamCannotBeEmpty, "set value")
		}
	default:
		return ewrap.Newf("unknown request type %q", string(r.Type))
	}

	return CheckText(r.Key, r.Value)
}

// Validate checks that the response carries a tag that is part of the protocol.
func (r *Response) Validate() error {
	switch r.Type {
	case TagGet, TagSet, TagRemove, TagErr:
		return CheckText(r.Message, r.Value)
	default:
		return ewrap.Wrapf(sentinel.ErrUnknownResponse, "response type %q", string(r.Type))
	}
}

// CheckText reports ErrInvalidUTF8 when s or *opt is not valid UTF-8.
func CheckText(s string, opt *string) error {
	if !utf8.ValidString(s) {
		return sentinel.ErrInvalidUTF8
	}

	if opt != nil && !utf8.ValidString(*opt) {
		return sentinel.ErrInvalidUTF8
	}

	return nil
}
