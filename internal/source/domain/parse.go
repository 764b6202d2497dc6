package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrMalformedDocument = errors.New("malformed_plan_document")

// ParsePlan extracts the loader view from a raw plan payload. The plan's own
// cost block is strict: non-numeric values there fail the document rather
// than load zeros into the warehouse. Service entries stay lenient and
// default missing cost fields to zero.
func ParsePlan(payload []byte) (Plan, error) {
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Plan{}, errors.Join(ErrMalformedDocument, err)
	}

	costShares, err := parsePlanCostShares(raw["planCostShares"])
	if err != nil {
		return Plan{}, errors.Join(ErrMalformedDocument, err)
	}

	plan := Plan{
		ObjectID:     asString(raw["objectId"]),
		ObjectType:   asString(raw["objectType"]),
		OrgID:        asString(raw["_org"]),
		PlanType:     asString(raw["planType"]),
		PlanName:     asString(raw["name"]),
		CreationDate: asString(raw["creationDate"]),
		CostShares:   costShares,
		Services:     parseServices(raw["linkedPlanServices"]),
	}
	return plan, nil
}

func parsePlanCostShares(value any) (CostShares, error) {
	if value == nil {
		return CostShares{}, nil
	}
	entry, ok := value.(map[string]any)
	if !ok {
		return CostShares{}, errors.New("planCostShares is not an object")
	}

	deductible, err := strictFloat("deductible", entry["deductible"])
	if err != nil {
		return CostShares{}, err
	}
	copay, err := strictFloat("copay", entry["copay"])
	if err != nil {
		return CostShares{}, err
	}
	return CostShares{Deductible: deductible, Copay: copay}, nil
}

// parseServices tolerates a missing or non-list linkedPlanServices value and
// yields zero entries for it.
func parseServices(value any) []PlanService {
	items, ok := value.([]any)
	if !ok {
		return nil
	}

	services := make([]PlanService, 0, len(items))
	for _, item := range items {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}

		service := PlanService{
			LinkedObjectID: asString(entry["objectId"]),
			CostShares:     parseCostShares(entry["planserviceCostShares"]),
		}
		if linked, ok := entry["linkedService"].(map[string]any); ok {
			service.ServiceID = asString(linked["objectId"])
			service.ServiceName = asString(linked["name"])
		}
		services = append(services, service)
	}
	return services
}

func parseCostShares(value any) CostShares {
	entry, ok := value.(map[string]any)
	if !ok {
		return CostShares{}
	}
	return CostShares{
		Deductible: asFloat(entry["deductible"]),
		Copay:      asFloat(entry["copay"]),
	}
}

func asString(value any) string {
	s, ok := value.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

// asFloat accepts JSON numbers and numeric strings, anything else is zero.
func asFloat(value any) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}

// strictFloat accepts JSON numbers and numeric strings, treats a missing
// value as zero, and rejects everything else.
func strictFloat(field string, value any) (float64, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case float64:
		return v, nil
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("%s is not numeric: %q", field, v)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("%s is not numeric", field)
	}
}
