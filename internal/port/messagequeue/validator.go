package messagequeue

import (
	"encoding/json"
	"fmt"
)

// Validate checks whether data is valid JSON conforming to the schema
// associated with the given subject. Unknown subjects only need valid JSON.
func Validate(subject string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON on subject %s", subject)
	}

	var agentID int64
	switch subject {
	case SubjectAgentTelemetry:
		var p TelemetryPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return schemaErr(subject, err)
		}
		agentID = p.AgentID
	case SubjectAgentLogs:
		var p LogPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return schemaErr(subject, err)
		}
		if p.Level == "" || p.Message == "" {
			return fmt.Errorf("schema validation failed for %s: level and message are required", subject)
		}
		agentID = p.AgentID
	case SubjectAgentMetrics:
		var p MetricPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return schemaErr(subject, err)
		}
		agentID = p.AgentID
	case SubjectAgentCreated, SubjectAgentDeleted:
		var p AgentEventPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return schemaErr(subject, err)
		}
		agentID = p.AgentID
	case SubjectTaskCreated:
		var p TaskCreatedPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return schemaErr(subject, err)
		}
		agentID = p.AgentID
	case SubjectTaskStatus:
		var p TaskStatusPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return schemaErr(subject, err)
		}
		agentID = p.AgentID
	default:
		return nil
	}

	if agentID <= 0 {
		return fmt.Errorf("schema validation failed for %s: agent_id is required", subject)
	}
	return nil
}

func schemaErr(subject string, err error) error {
	return fmt.Errorf("schema validation failed for %s: %w", subject, err)
}
