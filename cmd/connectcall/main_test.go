package main

import (
	"testing"

	"github.com/coreconnect/connect"
)

func TestParseProtocol(t *testing.T) {
	tests := []struct {
		in      string
		want    connect.NetworkProtocol
		wantErr bool
	}{
		{"connect", connect.NetworkProtocolConnect, false},
		{"Connect", connect.NetworkProtocolConnect, false},
		{"grpc", connect.NetworkProtocolGRPC, false},
		{"grpc-web", connect.NetworkProtocolGRPCWeb, false},
		{"GRPC-WEB", connect.NetworkProtocolGRPCWeb, false},
		{"bogus", 0, true},
	}
	for _, tt := range tests {
		got, err := parseProtocol(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseProtocol(%q) expected an error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseProtocol(%q) unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseProtocol(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
