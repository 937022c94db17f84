package mcpsession

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ggoodman/mcp-core-go/mcp"
)

// Ping checks that the peer is responsive.
func (s *Session) Ping(ctx context.Context) error {
	_, err := s.Call(ctx, mcp.PingMethod, nil)
	return err
}

// CreateMessage asks the client to sample its LLM. Only servers may call it,
// and only when the client declared sampling.
func (s *Session) CreateMessage(ctx context.Context, req *mcp.CreateMessageRequest, opts ...CallOption) (*mcp.CreateMessageResult, error) {
	raw, err := s.Call(ctx, mcp.SamplingCreateMessageMethod, req, opts...)
	if err != nil {
		return nil, err
	}
	var res mcp.CreateMessageResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("decode createMessage result: %w", err)
	}
	return &res, nil
}

// LogMessage sends notifications/message unless level is below the level the
// client selected with logging/setLevel, in which case it does nothing.
func (s *Session) LogMessage(ctx context.Context, level mcp.LoggingLevel, logger string, data any) error {
	if level.Severity() < s.eng.LogLevel().Severity() {
		return nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal log data: %w", err)
	}
	return s.Notify(ctx, mcp.LoggingMessageNotificationMethod, &mcp.LoggingMessageNotification{
		Level:  level,
		Logger: logger,
		Data:   raw,
	})
}

// NotifyResourceUpdated tells a subscribed client that uri changed.
func (s *Session) NotifyResourceUpdated(ctx context.Context, uri string) error {
	return s.Notify(ctx, mcp.ResourcesUpdatedNotificationMethod, &mcp.ResourceUpdatedNotification{URI: uri})
}

func (s *Session) NotifyResourceListChanged(ctx context.Context) error {
	return s.Notify(ctx, mcp.ResourcesListChangedNotificationMethod, nil)
}

func (s *Session) NotifyToolListChanged(ctx context.Context) error {
	return s.Notify(ctx, mcp.ToolsListChangedNotificationMethod, nil)
}

// Progress reports progress on the request that carried token. total may be
// nil when unknown.
func (s *Session) Progress(ctx context.Context, token mcp.ProgressToken, progress float64, total *float64) error {
	return s.Notify(ctx, mcp.ProgressNotificationMethod, &mcp.ProgressNotificationParams{
		ProgressToken: token,
		Progress:      progress,
		Total:         total,
	})
}
