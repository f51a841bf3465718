package connect

import "testing"

func TestCodeMarshalUnmarshalText(t *testing.T) {
	for code := minCode; code <= maxCode; code++ {
		text, err := code.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%v): %v", code, err)
		}
		var round Code
		if err := round.UnmarshalText(text); err != nil {
			t.Fatalf("UnmarshalText(%q): %v", text, err)
		}
		if round != code {
			t.Errorf("round-tripped code = %v, want %v", round, code)
		}
	}
}

func TestCodeUnmarshalTextAcceptsBritishSpelling(t *testing.T) {
	var c Code
	if err := c.UnmarshalText([]byte("CANCELLED")); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if c != CodeCanceled {
		t.Errorf("code = %v, want CodeCanceled", c)
	}
}

func TestCodeUnmarshalTextRejectsOutOfRange(t *testing.T) {
	var c Code
	if err := c.UnmarshalText([]byte("999")); err == nil {
		t.Error("expected error for out-of-range code")
	}
}

func TestCodeHTTPStatusIsPlausible(t *testing.T) {
	for code := minCode; code <= maxCode; code++ {
		status := code.HTTPStatus()
		if status < 100 || status > 599 {
			t.Errorf("code %v maps to implausible HTTP status %d", code, status)
		}
	}
}

func TestCodeConnectNameRoundTrip(t *testing.T) {
	for code := minCode; code <= maxCode; code++ {
		name := code.ConnectName()
		if got := codeFromConnectString(name); got != code {
			t.Errorf("codeFromConnectString(%q) = %v, want %v", name, got, code)
		}
	}
}

func TestCodeFromConnectStringUnknown(t *testing.T) {
	if got := codeFromConnectString("not_a_real_code"); got != CodeUnknown {
		t.Errorf("codeFromConnectString(unrecognized) = %v, want CodeUnknown", got)
	}
}

func TestCodeFromHTTPStatus(t *testing.T) {
	tests := []struct {
		status int
		want   Code
	}{
		{401, CodeUnauthenticated},
		{404, CodeUnimplemented},
		{429, CodeUnavailable},
		{200, CodeUnknown},
	}
	for _, tt := range tests {
		if got := codeFromHTTPStatus(tt.status); got != tt.want {
			t.Errorf("codeFromHTTPStatus(%d) = %v, want %v", tt.status, got, tt.want)
		}
	}
}
