package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

// PhaseMessage is a phase change pushed on the events socket.
type PhaseMessage struct {
	Type      string    `json:"type"`
	RequestID string    `json:"requestId"`
	Phase     string    `json:"phase"`
	Message   string    `json:"message,omitempty"`
	At        time.Time `json:"at"`
}

// AgentMessage is the envelope used on the analyst socket.
type AgentMessage struct {
	Type      string `json:"type"`
	Message   string `json:"message,omitempty"`
	Query     string `json:"query,omitempty"`
	RequestID string `json:"requestId,omitempty"`
	Answer    string `json:"answer,omitempty"`
}

// WatchCmd streams phase changes of a request until it finishes.
func WatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <request-id>",
		Short: "Stream phase changes of a search request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			return watchRequest(cmd.Context(), api, args[0], cmd.OutOrStdout(), outputJSON)
		},
	}
}

func watchRequest(ctx context.Context, api *APIClient, requestID string, w io.Writer, outputJSON bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	conn, err := api.DialWebsocket("/ws/requests/" + url.PathEscape(requestID) + "/events")
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("event stream closed: %w", err)
		}

		var msg PhaseMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if outputJSON {
			if err := printJSON(w, msg); err != nil {
				return err
			}
			continue
		}
		line := fmt.Sprintf("%s  %s", msg.At.Local().Format("15:04:05"), phaseColor(msg.Phase).Sprint(msg.Phase))
		if msg.Message != "" {
			line += "  " + msg.Message
		}
		fmt.Fprintln(w, line)
		if msg.Phase == "hitl" {
			fmt.Fprintf(w, "  waiting for review: reposcout review %s\n", msg.RequestID)
		}
	}
}

// ChatCmd asks a question about a request's results through an analyst socket.
func ChatCmd() *cobra.Command {
	var requestID string

	cmd := &cobra.Command{
		Use:   "chat <agent-key> <question>",
		Short: "Ask a question about analyzed repositories",
		Long: `Sends a chat message on an analyst's socket. The answer is grounded in the
analyses of the analyst's request unless --request names another one.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			reply, err := sendAgentMessage(api, args[0], AgentMessage{Type: "chat", Query: args[1], RequestID: requestID})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), reply.Answer)
			return nil
		},
	}

	cmd.Flags().StringVarP(&requestID, "request", "r", "", "Request whose results ground the answer")

	return cmd
}

// CorrectCmd steers a running analyst.
func CorrectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "correct <agent-key> <message>",
		Short: "Send a correction to a running analyst",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			if _, err := sendAgentMessage(api, args[0], AgentMessage{Type: "correction", Message: args[1]}); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), green.Sprint("Correction delivered"))
			return nil
		},
	}
}

// sendAgentMessage writes one message and waits for its reply.
func sendAgentMessage(api *APIClient, agentKey string, msg AgentMessage) (*AgentMessage, error) {
	conn, err := api.DialWebsocket("/ws/agents/" + url.PathEscape(agentKey))
	if err != nil {
		if statusOf(err) == http.StatusNotFound {
			return nil, fmt.Errorf("agent %s is not running", agentKey)
		}
		return nil, err
	}
	defer conn.Close()

	if err := conn.WriteJSON(msg); err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Minute))

	var reply AgentMessage
	if err := conn.ReadJSON(&reply); err != nil {
		return nil, fmt.Errorf("failed to read reply: %w", err)
	}
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))

	if reply.Type == "error" {
		return nil, errors.New(reply.Message)
	}
	return &reply, nil
}
