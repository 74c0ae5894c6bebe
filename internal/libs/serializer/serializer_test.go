package serializer

import (
	"errors"
	"slices"
	"testing"

	"github.com/longbridgeapp/assert"

	"github.com/hyp3rd/kvs/internal/sentinel"
)

type sample struct {
	Name  string  `codec:"name"  json:"name"  msgpack:"name"`
	Value *string `codec:"value" json:"value" msgpack:"value"`
}

func TestRegistry_Defaults(t *testing.T) {
	names := NewSerializerRegistry().Names()
	slices.Sort(names)

	assert.Equal(t, []string{"cbor", "json", "msgpack"}, names)
}

func TestRegistry_New(t *testing.T) {
	tests := []struct {
		name    string
		kind    string
		wantErr error
	}{
		{name: "json", kind: "json"},
		{name: "msgpack", kind: "msgpack"},
		{name: "cbor", kind: "cbor"},
		{name: "empty", kind: "", wantErr: sentinel.ErrParamCannotBeEmpty},
		{name: "unknown", kind: "yaml", wantErr: sentinel.ErrSerializerNotFound},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			s, err := New(test.kind)
			if test.wantErr != nil {
				assert.True(t, errors.Is(err, test.wantErr))

				return
			}

			assert.Nil(t, err)

			v := "value"
			data, err := s.Marshal(&sample{Name: "n", Value: &v})
			assert.Nil(t, err)

			var got sample
			assert.Nil(t, s.Unmarshal(data, &got))
			assert.Equal(t, "n", got.Name)
			assert.Equal(t, "value", *got.Value)
		})
	}
}

func TestRegistry_Register(t *testing.T) {
	r := NewEmptySerializerRegistry()
	assert.Equal(t, 0, len(r.Names()))

	r.Register("custom", func() ISerializer { return &JSONSerializer{} })

	s, err := r.New("custom")
	assert.Nil(t, err)
	assert.True(t, s != nil)
}

func TestUnmarshal_Garbage(t *testing.T) {
	for _, kind := range []string{"json", "msgpack", "cbor"} {
		s, err := New(kind)
		assert.Nil(t, err)

		var got sample
		assert.True(t, s.Unmarshal([]byte{0xc1}, &got) != nil)
	}
}
