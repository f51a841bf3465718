package codec

import (
	"strings"
	"testing"

	"google.golang.org/protobuf/types/known/wrapperspb"
)

func TestJSONMarshalUnmarshalRoundTrip(t *testing.T) {
	c := JSON{}
	msg := wrapperspb.String("hello")

	data, err := c.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(data), "hello") {
		t.Errorf("marshaled JSON %q should contain the string value", data)
	}

	var out wrapperspb.StringValue
	if err := c.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.GetValue() != "hello" {
		t.Errorf("out.Value = %q, want hello", out.GetValue())
	}
}

func TestJSONMarshalRejectsNonProtoMessage(t *testing.T) {
	c := JSON{}
	if _, err := c.Marshal(42); err == nil {
		t.Error("Marshal should reject a non-proto.Message value")
	}
}

func TestJSONNameAndIsBinary(t *testing.T) {
	c := JSON{}
	if c.Name() != "json" {
		t.Errorf("Name() = %q, want json", c.Name())
	}
	if c.IsBinary() {
		t.Error("IsBinary() should be false for the JSON codec")
	}
}

func TestJSONMarshalAppend(t *testing.T) {
	c := JSON{}
	prefix := []byte("prefix:")
	out, err := c.MarshalAppend(prefix, wrapperspb.String("x"))
	if err != nil {
		t.Fatalf("MarshalAppend: %v", err)
	}
	if !strings.HasPrefix(string(out), "prefix:") {
		t.Errorf("MarshalAppend output %q should retain the prefix", out)
	}
}
