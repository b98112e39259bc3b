package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/smazurov/decon/internal/events"
	"github.com/smazurov/decon/internal/logging"
)

// LogsRequest selects entries from the log ring buffer.
type LogsRequest struct {
	Since uint64 `query:"since" doc:"Only return entries with a sequence number above this"`
	Tail  int    `query:"tail" minimum:"0" doc:"Return at most this many of the newest entries, 0 returns all"`
}

// LogsResponse is a page of buffered log entries.
type LogsResponse struct {
	Body struct {
		Entries []events.LogEntryEvent `json:"entries" doc:"Log entries, oldest first"`
		Count   int                    `json:"count" doc:"Number of entries returned"`
	}
}

// LogLevelsResponse lists the effective level of every module.
type LogLevelsResponse struct {
	Body struct {
		Levels map[string]string `json:"levels" doc:"Effective level per module, the global level is keyed by an empty string"`
	}
}

// SetLogLevelRequest changes the level of one module at runtime.
type SetLogLevelRequest struct {
	Body struct {
		Module string `json:"module,omitempty" example:"pipeline" doc:"Module to change, empty changes the global level"`
		Level  string `json:"level" enum:"debug,info,warn,error" doc:"New level"`
	}
}

// LogEntryToEvent converts a buffered log entry for the event bus.
func LogEntryToEvent(entry logging.LogEntry) events.LogEntryEvent {
	return events.LogEntryEvent{
		Seq:        entry.Seq,
		Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
		Level:      entry.Level,
		Module:     entry.Module,
		Message:    entry.Message,
		Attributes: entry.Attributes,
	}
}

// registerLogRoutes registers the log endpoints.
func (s *Server) registerLogRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-logs",
		Method:      http.MethodGet,
		Path:        "/api/logs",
		Summary:     "Recent Logs",
		Description: "Get buffered log entries. Pass the last seen sequence number as since to poll for new entries.",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, input *LogsRequest) (*LogsResponse, error) {
		resp := &LogsResponse{}
		resp.Body.Entries = []events.LogEntryEvent{}

		buffer := logging.GetBuffer()
		if buffer == nil {
			return resp, nil
		}
		entries := buffer.Since(input.Since)
		if input.Tail > 0 && len(entries) > input.Tail {
			entries = entries[len(entries)-input.Tail:]
		}
		for _, entry := range entries {
			resp.Body.Entries = append(resp.Body.Entries, LogEntryToEvent(entry))
		}
		resp.Body.Count = len(resp.Body.Entries)
		return resp, nil
	})

	sse.Register(s.api, huma.Operation{
		OperationID: "logs-stream",
		Method:      http.MethodGet,
		Path:        "/api/logs/stream",
		Summary:     "Log Stream",
		Description: "Real-time log streaming via Server-Sent Events. Sends historical logs first, then streams new logs.",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"message": events.LogEntryEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		// Subscribe before replaying so nothing written in between is lost.
		eventCh := make(chan any, 100)
		unsubscribe := events.SubscribeToChannel[events.LogEntryEvent](s.eventBus, eventCh)
		defer unsubscribe()

		var last uint64
		if buffer := logging.GetBuffer(); buffer != nil {
			for _, entry := range buffer.ReadAll() {
				if err := send.Data(LogEntryToEvent(entry)); err != nil {
					return
				}
				last = entry.Seq
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if e, ok := event.(events.LogEntryEvent); ok && e.Seq <= last {
					continue
				}
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-log-levels",
		Method:      http.MethodGet,
		Path:        "/api/logs/levels",
		Summary:     "Log Levels",
		Description: "Get the effective log level of every module",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*LogLevelsResponse, error) {
		resp := &LogLevelsResponse{}
		resp.Body.Levels = logging.Levels()
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-log-level",
		Method:      http.MethodPut,
		Path:        "/api/logs/levels",
		Summary:     "Set Log Level",
		Description: "Change the level of one module, or the global level, until restart",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{400, 401},
	}, func(_ context.Context, input *SetLogLevelRequest) (*LogLevelsResponse, error) {
		if err := logging.SetLevel(input.Body.Module, input.Body.Level); err != nil {
			return nil, huma.Error400BadRequest("Failed to set log level", err)
		}
		s.logger.Info("Log level changed", "module", input.Body.Module, "level", input.Body.Level)

		resp := &LogLevelsResponse{}
		resp.Body.Levels = logging.Levels()
		return resp, nil
	})
}
