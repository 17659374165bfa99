package api

import (
	"context"
	"net/http"
	"sort"

	"github.com/danielgtaylor/huma/v2"
	"github.com/ovolkov/benchvision/internal/api/models"
)

// registerChannelRoutes registers detector channel list and toggle routes.
func (s *Server) registerChannelRoutes() {
	// List detector channels
	huma.Register(s.api, huma.Operation{
		OperationID: "list-channels",
		Method:      http.MethodGet,
		Path:        "/api/channels",
		Summary:     "List Channels",
		Description: "List the pipeline's detector channels and whether each is enabled",
		Tags:        []string{"channels"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.ChannelListResponse, error) {
		state := s.options.Runner.Channels()
		names := make([]string, 0, len(state))
		for name := range state {
			names = append(names, name)
		}
		sort.Strings(names)

		channels := make([]models.ChannelData, 0, len(names))
		for _, name := range names {
			channels = append(channels, models.ChannelData{Name: name, Enabled: state[name]})
		}
		return &models.ChannelListResponse{
			Body: models.ChannelListData{
				Channels: channels,
				Count:    len(channels),
			},
		}, nil
	})

	// Enable or disable a channel mid-run
	huma.Register(s.api, huma.Operation{
		OperationID: "toggle-channel",
		Method:      http.MethodPut,
		Path:        "/api/channels/{name}",
		Summary:     "Toggle Channel",
		Description: "Enable or disable a detector channel. Disabled channels substitute their configured off-mode signal",
		Tags:        []string{"channels"},
		Security:    withAuth(),
		Errors:      []int{401, 404},
	}, func(_ context.Context, input *models.ChannelToggleRequest) (*models.ChannelToggleResponse, error) {
		if !s.options.Runner.EnableChannel(input.Name, input.Body.Enabled) {
			return nil, huma.Error404NotFound("channel not found: " + input.Name)
		}
		s.logger.Info("Channel toggled", "channel", input.Name, "enabled", input.Body.Enabled)
		return &models.ChannelToggleResponse{
			Body: models.ChannelData{Name: input.Name, Enabled: input.Body.Enabled},
		}, nil
	})
}
