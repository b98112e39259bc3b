package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/decon/internal/api/models"
	"github.com/smazurov/decon/internal/display"
	"github.com/smazurov/decon/internal/fence"
	"github.com/smazurov/decon/internal/pipeline"
)

// registerPipelineRoutes registers frame submission and pipeline control endpoints
func (s *Server) registerPipelineRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-pipelines",
		Method:      http.MethodGet,
		Path:        "/api/pipelines",
		Summary:     "List Pipelines",
		Description: "Get the status of every display pipeline",
		Tags:        []string{"pipelines"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(_ context.Context, _ *struct{}) (*models.PipelineListResponse, error) {
		list := s.pipelines.List()
		data := make([]models.PipelineData, len(list))
		for i, p := range list {
			data[i] = models.PipelineToAPI(p.Status())
		}
		return &models.PipelineListResponse{
			Body: models.PipelineListData{
				Pipelines: data,
				Count:     len(data),
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-pipeline",
		Method:      http.MethodGet,
		Path:        "/api/pipelines/{id}",
		Summary:     "Get Pipeline",
		Description: "Get the status of one display pipeline",
		Tags:        []string{"pipelines"},
		Errors:      []int{401, 404},
		Security:    withAuth(),
	}, func(_ context.Context, input *models.PipelinePath) (*models.PipelineResponse, error) {
		p, err := s.pipelines.Get(input.ID)
		if err != nil {
			return nil, mapPipelineError(err)
		}
		return &models.PipelineResponse{Body: models.PipelineToAPI(p.Status())}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-pipeline-capabilities",
		Method:      http.MethodGet,
		Path:        "/api/pipelines/{id}/capabilities",
		Summary:     "Get Capabilities",
		Description: "Get the panel, window count, formats and compositing units a pipeline accepts",
		Tags:        []string{"pipelines"},
		Errors:      []int{401, 404},
		Security:    withAuth(),
	}, func(_ context.Context, input *models.PipelinePath) (*models.CapabilitiesResponse, error) {
		p, err := s.pipelines.Get(input.ID)
		if err != nil {
			return nil, mapPipelineError(err)
		}
		return &models.CapabilitiesResponse{Body: p.Capabilities()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "submit-frame",
		Method:      http.MethodPost,
		Path:        "/api/pipelines/{id}/frames",
		Summary:     "Submit Frame",
		Description: "Validate and queue a frame. The returned token is released once the frame is on screen, or aborted. The frame's own buffers stay in scanout until the next token is released; after token N is released the buffers of frame N-1 may be reused.",
		Tags:        []string{"pipelines"},
		Errors:      []int{400, 401, 404, 409, 503},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.SubmitFrameRequest) (*models.SubmitFrameResponse, error) {
		p, err := s.pipelines.Get(input.ID)
		if err != nil {
			return nil, mapPipelineError(err)
		}

		req := display.Request{Windows: make([]display.WindowConfig, len(input.Body.Windows))}
		for i, w := range input.Body.Windows {
			req.Windows[i] = w.ToDomain()
		}

		token, err := p.Submit(ctx, req)
		if err != nil {
			return nil, mapPipelineError(err)
		}
		return &models.SubmitFrameResponse{Body: models.SubmitFrameData{Token: uint64(token)}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "wait-fence",
		Method:      http.MethodGet,
		Path:        "/api/pipelines/{id}/fences/{token}",
		Summary:     "Wait For Release",
		Description: "Get the state of a release token, optionally waiting up to timeout_ms for it to be signaled",
		Tags:        []string{"pipelines"},
		Errors:      []int{400, 401, 404},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.FenceRequest) (*models.FenceResponse, error) {
		p, err := s.pipelines.Get(input.ID)
		if err != nil {
			return nil, mapPipelineError(err)
		}

		token := fence.Token(input.Token)
		var status fence.Status
		if input.TimeoutMs > 0 {
			status, err = p.Wait(ctx, token, time.Duration(input.TimeoutMs)*time.Millisecond)
		} else {
			status, err = p.FenceStatus(token)
		}
		if err != nil {
			return nil, mapPipelineError(err)
		}
		return &models.FenceResponse{Body: models.FenceData{Token: input.Token, Status: status}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "reset-pipeline",
		Method:      http.MethodPost,
		Path:        "/api/pipelines/{id}/reset",
		Summary:     "Reset Pipeline",
		Description: "Leave the degraded state so frames are accepted again. The next frame is committed in full.",
		Tags:        []string{"pipelines"},
		Errors:      []int{401, 404, 503},
		Security:    withAuth(),
	}, func(_ context.Context, input *models.PipelinePath) (*models.PipelineResponse, error) {
		p, err := s.pipelines.Get(input.ID)
		if err != nil {
			return nil, mapPipelineError(err)
		}
		if err := p.Reset(); err != nil {
			return nil, mapPipelineError(err)
		}
		return &models.PipelineResponse{Body: models.PipelineToAPI(p.Status())}, nil
	})
}

// registerUnitRoutes registers the compositing unit endpoint
func (s *Server) registerUnitRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-units",
		Method:      http.MethodGet,
		Path:        "/api/units",
		Summary:     "List Compositing Units",
		Description: "Get the scaler/rotator units shared by the pipelines and their current owner",
		Tags:        []string{"units"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(_ context.Context, _ *struct{}) (*models.UnitListResponse, error) {
		body := models.UnitListData{}
		if arbiter := s.pipelines.Arbiter(); arbiter != nil {
			body.Units = arbiter.Units()
		}
		body.Count = len(body.Units)
		return &models.UnitListResponse{Body: body}, nil
	})
}

// mapPipelineError maps domain errors to HTTP errors
func mapPipelineError(err error) error {
	if errors.Is(err, pipeline.ErrNotFound) {
		return huma.Error404NotFound("pipeline not found", err)
	}
	if errors.Is(err, fence.ErrUnknownToken) {
		return huma.Error404NotFound("token was never issued", err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return huma.Error503ServiceUnavailable("request cancelled", err)
	}

	var de *display.Error
	if !errors.As(err, &de) {
		return huma.Error500InternalServerError("internal server error", err)
	}
	switch de.Kind {
	case display.KindValidation:
		return huma.Error400BadRequest(de.Error(), err)
	case display.KindResource:
		return huma.Error409Conflict(de.Error(), err)
	case display.KindPipeline:
		return huma.Error503ServiceUnavailable(de.Error(), err)
	default:
		return huma.Error500InternalServerError(de.Error(), err)
	}
}
