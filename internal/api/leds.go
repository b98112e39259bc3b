package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/decon/internal/led"
)

// LEDStatusResponse describes the status LED and the health it reflects.
type LEDStatusResponse struct {
	Body struct {
		LED               string   `json:"led" example:"status" doc:"Logical name of the status LED"`
		AvailableTypes    []string `json:"available_types" doc:"LEDs the backend can drive"`
		AvailablePatterns []string `json:"available_patterns" doc:"Patterns the backend supports"`
		Degraded          []string `json:"degraded" doc:"Pipelines currently degraded, the LED blinks while this is not empty"`
	}
}

// LEDRequest overrides the status LED until the next pipeline health change.
type LEDRequest struct {
	Body struct {
		Enabled bool   `json:"enabled" example:"true" doc:"Whether the LED should be on or off"`
		Pattern string `json:"pattern,omitempty" enum:"solid,blink" example:"blink" doc:"LED pattern"`
	}
}

// registerLEDRoutes registers status LED endpoints
func (s *Server) registerLEDRoutes() {
	if s.options.LEDManager == nil {
		s.logger.Debug("LED manager not available, skipping LED routes")
		return
	}
	manager := s.options.LEDManager

	huma.Register(s.api, huma.Operation{
		OperationID: "get-led-status",
		Method:      http.MethodGet,
		Path:        "/api/leds",
		Summary:     "Get Status LED",
		Description: "Get the status LED capabilities and the degraded pipelines it is signaling",
		Tags:        []string{"leds"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(_ context.Context, _ *struct{}) (*LEDStatusResponse, error) {
		resp := &LEDStatusResponse{}
		resp.Body.LED = led.StatusLED
		resp.Body.AvailableTypes = manager.GetController().Available()
		resp.Body.AvailablePatterns = manager.GetController().Patterns()
		resp.Body.Degraded = manager.Degraded()
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "control-led",
		Method:      http.MethodPost,
		Path:        "/api/leds",
		Summary:     "Control Status LED",
		Description: "Set the status LED directly, for example to locate a board. The next pipeline health change restores the health pattern.",
		Tags:        []string{"leds"},
		Errors:      []int{400, 401},
		Security:    withAuth(),
	}, func(_ context.Context, input *LEDRequest) (*struct{}, error) {
		pattern := input.Body.Pattern
		if pattern == "" {
			pattern = led.PatternSolid
		}
		if err := manager.GetController().Set(led.StatusLED, input.Body.Enabled, pattern); err != nil {
			return nil, huma.Error400BadRequest("Failed to control LED", err)
		}
		return &struct{}{}, nil
	})
}
