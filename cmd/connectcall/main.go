// Command connectcall issues a single RPC against a server using the
// protocol engine in package connect, without needing generated message
// types: the request and response bodies are arbitrary JSON, carried as a
// google.protobuf.Struct. It exists mainly as a manual smoke-test tool for
// the three supported protocols.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/coreconnect/connect"
	"github.com/coreconnect/connect/codec"
)

func main() {
	var (
		host        string
		protocolStr string
		data        string
		idempotent  bool
		timeout     time.Duration
		headerFlags []string
	)

	cmd := &cobra.Command{
		Use:   "connectcall <package.Service/Method>",
		Short: "Issue one RPC over Connect, gRPC, or gRPC-Web",
		Long: `connectcall issues a single unary RPC against a server, encoding the
--data JSON payload as a google.protobuf.Struct so no generated client code
is required.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), host, protocolStr, args[0], data, idempotent, timeout, headerFlags)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "server base URL, e.g. https://api.example.com")
	cmd.Flags().StringVar(&protocolStr, "protocol", "connect", "connect | grpc | grpc-web")
	cmd.Flags().StringVar(&data, "data", "{}", "request body as a JSON object")
	cmd.Flags().BoolVar(&idempotent, "idempotent", false, "mark the call idempotent (enables GET encoding under Connect)")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "call deadline")
	cmd.Flags().StringArrayVar(&headerFlags, "header", nil, "additional request header as key:value (repeatable)")
	cmd.MarkFlagRequired("host")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, host, protocolStr, methodPath, data string, idempotent bool, timeout time.Duration, headerFlags []string) error {
	protocol, err := parseProtocol(protocolStr)
	if err != nil {
		return err
	}

	req := new(structpb.Struct)
	if err := protojson.Unmarshal([]byte(data), req); err != nil {
		return fmt.Errorf("parse --data as JSON object: %w", err)
	}

	header := connect.NewHeaders()
	for _, kv := range headerFlags {
		key, value, ok := strings.Cut(kv, ":")
		if !ok {
			return fmt.Errorf("invalid --header %q, expected key:value", kv)
		}
		header.Add(strings.TrimSpace(key), strings.TrimSpace(value))
	}

	cfg := connect.NewProtocolClientConfig(host, protocol,
		connect.WithCodec(codec.JSON{EmitUnpopulated: true}),
		connect.WithGetConfiguration(connect.GetConfigurationEnabledIfIdempotent),
	)
	protocolClient := connect.NewProtocolClient(cfg)

	spec := connect.MethodSpec{Path: methodPath, StreamKind: connect.StreamTypeUnary, Idempotent: idempotent}
	client := connect.NewClient[*structpb.Struct, *structpb.Struct](protocolClient, spec, cfg.Codec, func() *structpb.Struct { return new(structpb.Struct) })

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, respHeader, err := client.CallUnary(ctx, req, header)
	if err != nil {
		if connectErr, ok := connect.AsError(err); ok {
			return fmt.Errorf("rpc failed: %s: %s", connectErr.Code(), connectErr.Message())
		}
		return fmt.Errorf("rpc failed: %w", err)
	}

	respHeader.Range(func(key string, values []string) {
		for _, v := range values {
			fmt.Fprintf(os.Stderr, "%s: %s\n", key, v)
		}
	})
	out, err := protojson.MarshalOptions{Indent: "  "}.Marshal(res)
	if err != nil {
		return fmt.Errorf("format response: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

func parseProtocol(s string) (connect.NetworkProtocol, error) {
	switch strings.ToLower(s) {
	case "connect":
		return connect.NetworkProtocolConnect, nil
	case "grpc":
		return connect.NetworkProtocolGRPC, nil
	case "grpc-web":
		return connect.NetworkProtocolGRPCWeb, nil
	default:
		return 0, fmt.Errorf("unknown protocol %q, want connect, grpc, or grpc-web", s)
	}
}
