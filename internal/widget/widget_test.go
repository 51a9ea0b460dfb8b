package widget

import (
	"testing"

	"github.com/ytnobody/teamsctl/internal/rpc"
	"github.com/ytnobody/teamsctl/internal/taskstore"
	"github.com/ytnobody/teamsctl/internal/teamconfig"
)

func TestRenderHiddenWhenEmpty(t *testing.T) {
	lines := Render(nil, nil, teamconfig.TeamConfig{}, false)
	if lines != nil {
		t.Fatalf("expected nil (hidden), got %v", lines)
	}
}

func TestRenderIdleWorkerOwningInProgressTaskShowsWorking(t *testing.T) {
	teammates := []TeammateView{{Name: "w1", State: rpc.Idle}}
	tasks := []taskstore.Task{{ID: "t1", Subject: "do thing", Status: taskstore.InProgress, Owner: "w1"}}
	cfg := teamconfig.TeamConfig{}

	lines := Render(teammates, tasks, cfg, false)
	found := false
	for _, l := range lines {
		if l.Text == "w1  working" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a 'w1  working' line, got %+v", lines)
	}
}

func TestRenderStreamingWorker(t *testing.T) {
	teammates := []TeammateView{{Name: "w1", State: rpc.Streaming}}
	lines := Render(teammates, nil, teamconfig.TeamConfig{}, false)
	if len(lines) != 1 || lines[0].Text != "w1  streaming" {
		t.Fatalf("expected streaming line, got %+v", lines)
	}
}

func TestRenderNotHiddenWithOnlineWorkerOnly(t *testing.T) {
	cfg := teamconfig.TeamConfig{Members: []teamconfig.Member{
		{Name: "w1", Role: teamconfig.RoleWorker, Status: teamconfig.StatusOnline},
	}}
	lines := Render(nil, nil, cfg, false)
	if lines == nil {
		t.Fatal("expected widget to be visible when a worker is online")
	}
}

func TestRenderDelegateModeHeader(t *testing.T) {
	teammates := []TeammateView{{Name: "w1", State: rpc.Idle}}
	lines := Render(teammates, nil, teamconfig.TeamConfig{}, true)
	if len(lines) == 0 || lines[0].Text != "mode: delegate" {
		t.Fatalf("expected delegate mode header first, got %+v", lines)
	}
}
