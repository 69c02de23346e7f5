package agent_test

import (
	"errors"
	"testing"
	"time"

	"github.com/Strob0t/AgentFleet/internal/domain"
	"github.com/Strob0t/AgentFleet/internal/domain/agent"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func validCreate() agent.CreateRequest {
	return agent.CreateRequest{Name: "a1", Node: "pve1", ContainerID: "c1", Image: "img:1"}
}

func ptr[T any](v T) *T { return &v }

func TestCreateRequestValidation(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*agent.CreateRequest)
		field  string
	}{
		{"blank name", func(r *agent.CreateRequest) { r.Name = "   " }, "name"},
		{"missing node", func(r *agent.CreateRequest) { r.Node = "" }, "proxmox_node"},
		{"missing container", func(r *agent.CreateRequest) { r.ContainerID = "" }, "container_id"},
		{"missing image", func(r *agent.CreateRequest) { r.Image = "\t" }, "docker_image"},
		{"zero memory limit", func(r *agent.CreateRequest) { r.MemoryLimit = ptr(int64(0)) }, "memory_limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validCreate()
			tt.modify(&req)
			err := req.Validate()
			var ve *domain.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if ve.Field != tt.field {
				t.Errorf("expected field %s, got %s", tt.field, ve.Field)
			}
		})
	}

	req := validCreate()
	if err := req.Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}
}

func TestNewDefaults(t *testing.T) {
	req := validCreate()
	req.Name = "  a1  "
	a := agent.New(&req, now)

	if a.Name != "a1" {
		t.Errorf("expected trimmed name, got %q", a.Name)
	}
	if a.Status != agent.StatusOffline || a.State != agent.StateIdle {
		t.Errorf("expected offline/idle, got %s/%s", a.Status, a.State)
	}
	if a.MemoryLimit != agent.DefaultMemoryLimit {
		t.Errorf("expected default memory limit, got %d", a.MemoryLimit)
	}
	if a.MemoryLimit != 1073741824 {
		t.Errorf("expected default memory limit, got %d", a.MemoryLimit)
	}
	if a.CPUUsage != 0 || a.MemoryUsage != 0 || a.Uptime != 0 {
		t.Error("expected zeroed telemetry")
	}
	if !a.CreatedAt.Equal(now) || !a.UpdatedAt.Equal(now) {
		t.Error("expected timestamps set to now")
	}
}

func TestUpdateApplyRejectsOutOfRange(t *testing.T) {
	req := validCreate()
	current := agent.New(&req, now)
	before := *current

	tests := []struct {
		name  string
		upd   agent.UpdateRequest
		field string
	}{
		{"cpu above 100", agent.UpdateRequest{CPUUsage: ptr(150.0)}, "cpu_usage"},
		{"cpu below 0", agent.UpdateRequest{CPUUsage: ptr(-0.5)}, "cpu_usage"},
		{"negative memory", agent.UpdateRequest{MemoryUsage: ptr(int64(-1))}, "memory_usage"},
		{"zero limit", agent.UpdateRequest{MemoryLimit: ptr(int64(0))}, "memory_limit"},
		{"negative uptime", agent.UpdateRequest{Uptime: ptr(int64(-5))}, "uptime"},
		{"unknown status", agent.UpdateRequest{Status: ptr(agent.Status("rebooting"))}, "status"},
		{"unknown state", agent.UpdateRequest{State: ptr(agent.State("asleep"))}, "state"},
		{"blank name", agent.UpdateRequest{Name: ptr(" ")}, "name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.upd.Apply(current, now.Add(time.Minute))
			var ve *domain.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if ve.Field != tt.field {
				t.Errorf("expected field %s, got %s", tt.field, ve.Field)
			}
			if *current != before {
				t.Fatal("current record was modified")
			}
		})
	}
}

func TestUpdateApplyMergesSuppliedFields(t *testing.T) {
	req := validCreate()
	current := agent.New(&req, now)
	later := now.Add(time.Hour)

	upd := agent.UpdateRequest{
		Status:   ptr(agent.StatusOnline),
		CPUUsage: ptr(42.456),
		Uptime:   ptr(int64(300)),
	}
	next, err := upd.Apply(current, later)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if next.Status != agent.StatusOnline {
		t.Errorf("expected online, got %s", next.Status)
	}
	if next.State != agent.StateIdle {
		t.Errorf("state should be unchanged, got %s", next.State)
	}
	if next.CPUUsage != 42.46 {
		t.Errorf("expected cpu rounded to 42.46, got %v", next.CPUUsage)
	}
	if next.Name != "a1" {
		t.Errorf("name should be unchanged, got %s", next.Name)
	}
	if !next.UpdatedAt.Equal(later) || !next.LastSeen.Equal(later) {
		t.Error("expected updated_at and last_seen bumped")
	}
	if !next.CreatedAt.Equal(now) {
		t.Error("created_at must not change")
	}
}

func TestUpdateNameOnlyKeepsLastSeen(t *testing.T) {
	req := validCreate()
	current := agent.New(&req, now)

	next, err := (&agent.UpdateRequest{Name: ptr("renamed")}).Apply(current, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !next.LastSeen.Equal(now) {
		t.Errorf("last_seen should not move on a rename, got %v", next.LastSeen)
	}
}

func TestUpdateClearsBlankDescription(t *testing.T) {
	req := validCreate()
	req.Description = ptr("builder")
	current := agent.New(&req, now)

	next, err := (&agent.UpdateRequest{Description: ptr("")}).Apply(current, now)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if next.Description != nil {
		t.Errorf("expected nil description, got %q", *next.Description)
	}
}

func TestHeartbeatUpdateRequest(t *testing.T) {
	hb := agent.Heartbeat{AgentID: 3, Status: ptr(agent.StatusOnline), DiskUsage: ptr(int64(10))}
	upd := hb.UpdateRequest()
	if upd.Name != nil || upd.Description != nil {
		t.Fatal("heartbeat must not carry identity fields")
	}
	if *upd.Status != agent.StatusOnline || *upd.DiskUsage != 10 {
		t.Fatal("heartbeat fields not carried over")
	}
}
