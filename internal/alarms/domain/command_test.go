package alarms

import (
	"errors"
	"testing"
)

func strPtr(value string) *string { return &value }

func TestBuildReplaceCommandRequiresState(t *testing.T) {
	_, err := BuildReplaceCommand(UpdateRequest{})
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if validation.Field != "state" {
		t.Fatalf("expected state field, got %q", validation.Field)
	}

	if _, err := BuildReplaceCommand(UpdateRequest{State: strPtr("")}); err == nil {
		t.Fatal("expected error for empty state")
	}
	if _, err := BuildReplaceCommand(UpdateRequest{State: strPtr("BROKEN")}); err == nil {
		t.Fatal("expected error for unknown state")
	}
}

func TestBuildReplaceCommandClearsAbsentFields(t *testing.T) {
	cmd, err := BuildReplaceCommand(UpdateRequest{State: strPtr(StateAlarm)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cmd.State != StateAlarm {
		t.Fatalf("expected state ALARM, got %q", cmd.State)
	}
	if cmd.LifecycleState != nil || cmd.Link != nil {
		t.Fatal("expected absent lifecycle state and link to clear")
	}
}

func TestBuildReplaceCommandKeepsProvidedFields(t *testing.T) {
	cmd, err := BuildReplaceCommand(UpdateRequest{
		State:          strPtr(StateOK),
		LifecycleState: strPtr("RESOLVED"),
		Link:           strPtr("http://runbook/1"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cmd.LifecycleState == nil || *cmd.LifecycleState != "RESOLVED" {
		t.Fatalf("unexpected lifecycle state: %v", cmd.LifecycleState)
	}
	if cmd.Link == nil || *cmd.Link != "http://runbook/1" {
		t.Fatalf("unexpected link: %v", cmd.Link)
	}
}

func TestBuildMergeCommandDefaultsFromPrior(t *testing.T) {
	prior := AlarmRow{
		State:          StateAlarm,
		LifecycleState: strPtr("OPEN"),
		Link:           strPtr("http://runbook/2"),
	}

	cmd, err := BuildMergeCommand(UpdateRequest{}, prior)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cmd.State != StateAlarm {
		t.Fatalf("expected prior state, got %q", cmd.State)
	}
	if cmd.LifecycleState == nil || *cmd.LifecycleState != "OPEN" {
		t.Fatalf("expected prior lifecycle state, got %v", cmd.LifecycleState)
	}
	if cmd.Link == nil || *cmd.Link != "http://runbook/2" {
		t.Fatalf("expected prior link, got %v", cmd.Link)
	}
}

func TestBuildMergeCommandEmptyValuesKeepPrior(t *testing.T) {
	prior := AlarmRow{State: StateOK, LifecycleState: strPtr("OPEN")}

	cmd, err := BuildMergeCommand(UpdateRequest{
		State:          strPtr(""),
		LifecycleState: strPtr(""),
	}, prior)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cmd.State != StateOK {
		t.Fatalf("expected prior state, got %q", cmd.State)
	}
	if cmd.LifecycleState == nil || *cmd.LifecycleState != "OPEN" {
		t.Fatalf("expected prior lifecycle state, got %v", cmd.LifecycleState)
	}
}

func TestBuildMergeCommandOverrides(t *testing.T) {
	prior := AlarmRow{State: StateOK}

	cmd, err := BuildMergeCommand(UpdateRequest{State: strPtr(StateUndetermined)}, prior)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cmd.State != StateUndetermined {
		t.Fatalf("expected UNDETERMINED, got %q", cmd.State)
	}
}

func TestBuildMergeCommandRejectsInvalidPriorState(t *testing.T) {
	if _, err := BuildMergeCommand(UpdateRequest{}, AlarmRow{State: "???"}); err == nil {
		t.Fatal("expected error for invalid resulting state")
	}
}

func TestValidState(t *testing.T) {
	for _, state := range []string{StateOK, StateAlarm, StateUndetermined} {
		if !ValidState(state) {
			t.Fatalf("expected %q to be valid", state)
		}
	}
	if ValidState("ok") {
		t.Fatal("states are case sensitive")
	}
	if ValidState("") {
		t.Fatal("empty state is not valid")
	}
}
