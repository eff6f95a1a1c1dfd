package builtin

import (
	"context"
	"encoding/json"

	"github.com/flowcore/automation-engine/internal/node"
	"github.com/flowcore/automation-engine/pkg/clients/email"
)

// NotifyEmailConfig supplies the static parts of the message. The
// recipient ("to") always comes from the node's input; a non-empty
// Subject or Body in the input overrides the configured one.
type NotifyEmailConfig struct {
	From    string `json:"from"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NotifyEmail wraps the email client to send a notification, returning
// the provider's delivery result.
type NotifyEmail struct {
	Client email.Client
	Config NotifyEmailConfig
}

func (n NotifyEmail) Execute(ctx context.Context, input json.RawMessage, _ *node.ExecutionContext) (json.RawMessage, *node.Error) {
	var in struct {
		To      string `json:"to"`
		Subject string `json:"subject"`
		Body    string `json:"body"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, node.FatalError("notify_email: input missing recipient: %v", err)
	}
	if in.To == "" {
		return nil, node.FatalError("notify_email: missing required field \"to\"")
	}

	subject := in.Subject
	if subject == "" {
		subject = n.Config.Subject
	}
	body := in.Body
	if body == "" {
		body = n.Config.Body
	}

	msg := email.Message{
		To:      in.To,
		From:    n.Config.From,
		Subject: subject,
		Body:    body,
	}

	result, err := n.Client.Send(ctx, msg)
	if err != nil {
		return nil, node.RetryableError("notify_email: %v", err)
	}

	out, merr := json.Marshal(map[string]any{
		"to":             msg.To,
		"deliveryStatus": result.DeliveryStatus,
		"sent":           result.Sent,
	})
	if merr != nil {
		return nil, node.FatalError("notify_email: failed to marshal output: %v", merr)
	}
	return out, nil
}
