/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - Decimal magnitudes rendered as exact strings

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Runs:        RunDTO, CreateRunRequest
  Flows:       FlowDTO, FlowsResponse
  Diagnostics: DiagnosticDTO
  Scenarios:   ScenarioDTO, LoadScenarioRequest

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/flow-engine/generic"
)

// =============================================================================
// RUNS
// =============================================================================

type RunDTO struct {
	ID           string `json:"id"`
	CreatedAt    string `json:"created_at"`
	RegionTokens int    `json:"region_tokens"`
	Region       string `json:"region,omitempty"`
	Regions      int    `json:"regions"`
	Flows        int    `json:"flows"`
	Diagnostics  int    `json:"diagnostics"`
}

// CreateRunRequest computes a new run. An empty Region computes all regions.
type CreateRunRequest struct {
	Region string `json:"region"`
}

func toRunDTO(r generic.Run) RunDTO {
	return RunDTO{
		ID:           string(r.ID),
		CreatedAt:    r.CreatedAt.UTC().Format(time.RFC3339),
		RegionTokens: r.RegionTokens,
		Region:       r.Region,
		Regions:      r.Regions,
		Flows:        r.Flows,
		Diagnostics:  r.Diagnostics,
	}
}

// =============================================================================
// FLOWS
// =============================================================================

// FlowDTO is one long-form row. Value is an exact decimal string.
type FlowDTO struct {
	Name   string   `json:"name"`
	Region string   `json:"region"`
	Source []string `json:"source"`
	Target []string `json:"target"`
	Units  string   `json:"units"`
	Value  string   `json:"value"`
}

type FlowsResponse struct {
	RunID string    `json:"run_id"`
	Level int       `json:"level"`
	Count int       `json:"count"`
	Flows []FlowDTO `json:"flows"`
}

func toFlowDTO(row generic.FlowRow) FlowDTO {
	return FlowDTO{
		Name:   generic.EncodeFlow(row.Key, row.Level),
		Region: string(row.Key.Region),
		Source: row.Key.Source.Components(row.Level),
		Target: row.Key.Target.Components(row.Level),
		Units:  string(row.Key.Units),
		Value:  row.Value.String(),
	}
}

// =============================================================================
// DIAGNOSTICS
// =============================================================================

type DiagnosticDTO struct {
	Pass    int    `json:"pass"`
	Region  string `json:"region"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// =============================================================================
// COMMON
// =============================================================================

type HealthDTO struct {
	Status string `json:"status"`
	Inputs bool   `json:"inputs_loaded"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
