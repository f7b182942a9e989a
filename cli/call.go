package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/slighter12/maya-livelink-go/commands"
	"github.com/slighter12/maya-livelink-go/jsonrpc"
	"github.com/spf13/cobra"
)

// CallOptions holds flags for the call command.
type CallOptions struct {
	*RootOptions
	Addr    string
	Timeout time.Duration
	Client  *http.Client
}

// NewCallCommand creates the call command.
func NewCallCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CallOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "call <command> [json-arguments]",
		Short: "Run a command on a running provider",
		Long: `Run a subject command on a running provider through its JSON-RPC endpoint
and print the result. "list" prints the available commands.

Example:
  livelink call list
  livelink call add-subject '{"path":"|rig|hips"}'
  livelink call change-stream-mode '{"path":"|rig|hips","mode":"Root Only"}'`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var arguments json.RawMessage
			if len(args) == 2 {
				arguments = json.RawMessage(args[1])
				if !json.Valid(arguments) {
					return fmt.Errorf("arguments are not valid JSON: %s", args[1])
				}
			}
			return runCall(cmd.Context(), opts, args[0], arguments, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "localhost:9090", "provider address (host:port or URL)")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 10*time.Second, "request timeout")

	return cmd
}

func runCall(ctx context.Context, opts *CallOptions, name string, arguments json.RawMessage, out io.Writer) error {
	var params map[string]any
	method := commands.MethodCommandsCall
	if name == "list" {
		method = commands.MethodCommandsList
	} else {
		params = map[string]any{"name": name}
		if len(arguments) > 0 {
			params["arguments"] = arguments
		}
	}

	body, err := json.Marshal(map[string]any{
		"jsonrpc": jsonrpc.Version,
		"id":      1,
		"method":  method,
		"params":  params,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rpcURL(opts.Addr), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("provider unreachable: %w", err)
	}
	defer resp.Body.Close()

	var decoded struct {
		Result json.RawMessage       `json:"result"`
		Error  *jsonrpc.JSONRPCError `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("unexpected response (status %d): %w", resp.StatusCode, err)
	}
	if decoded.Error != nil {
		return decoded.Error
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, decoded.Result, "", "  "); err != nil {
		return err
	}
	pretty.WriteByte('\n')
	_, err = pretty.WriteTo(out)
	return err
}

func rpcURL(addr string) string {
	addr = strings.TrimRight(addr, "/")
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		addr = "http://" + addr
	}
	return addr + "/rpc"
}
