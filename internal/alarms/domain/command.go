package alarms

// UpdateRequest is a decoded alarm-update payload. Pointer fields
// distinguish absent fields from explicit empty values.
type UpdateRequest struct {
	State          *string `json:"state"`
	LifecycleState *string `json:"lifecycle_state"`
	Link           *string `json:"link"`
}

// UpdateCommand is a fully-populated state update. Nil LifecycleState or
// Link persists as NULL.
type UpdateCommand struct {
	State          string
	LifecycleState *string
	Link           *string
}

// BuildReplaceCommand builds the command for a full replace. State is
// required; absent lifecycle_state and link clear the stored values.
func BuildReplaceCommand(req UpdateRequest) (UpdateCommand, error) {
	if req.State == nil || *req.State == "" {
		return UpdateCommand{}, &ValidationError{Field: "state", Reason: "is required"}
	}
	if !ValidState(*req.State) {
		return UpdateCommand{}, &ValidationError{Field: "state", Reason: "must be one of OK, ALARM, UNDETERMINED"}
	}
	return UpdateCommand{
		State:          *req.State,
		LifecycleState: req.LifecycleState,
		Link:           req.Link,
	}, nil
}

// BuildMergeCommand builds the command for a partial merge. Absent or empty
// fields keep the values from the prior alarm snapshot.
func BuildMergeCommand(req UpdateRequest, prior AlarmRow) (UpdateCommand, error) {
	cmd := UpdateCommand{
		State:          prior.State,
		LifecycleState: prior.LifecycleState,
		Link:           prior.Link,
	}
	if req.State != nil && *req.State != "" {
		cmd.State = *req.State
	}
	if req.LifecycleState != nil && *req.LifecycleState != "" {
		cmd.LifecycleState = req.LifecycleState
	}
	if req.Link != nil && *req.Link != "" {
		cmd.Link = req.Link
	}
	if !ValidState(cmd.State) {
		return UpdateCommand{}, &ValidationError{Field: "state", Reason: "must be one of OK, ALARM, UNDETERMINED"}
	}
	return cmd, nil
}
