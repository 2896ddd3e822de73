package model

import (
	"bytes"
	"encoding/json"
	"strings"
)

// FlexID accepts both JSON numbers and strings; the reputation API is not
// consistent about which one it sends for identifiers.
type FlexID string

func (f *FlexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexID(n.String())
	return nil
}

func (f FlexID) String() string {
	return string(f)
}

// Task asks for RequiredCommentText to be posted on the target profile.
type Task struct {
	TaskID                 FlexID `json:"taskId"`
	RequiredCommentID      FlexID `json:"requiredCommentId"`
	RequiredCommentText    string `json:"requiredCommentText"`
	TargetSteamProfileID   FlexID `json:"targetSteamProfileId"`
	TargetSteamProfileName string `json:"targetSteamProfileName"`
}

// Valid reports whether the task carries everything needed to post. Invalid
// tasks are skipped, never retried.
func (t Task) Valid() bool {
	return strings.TrimSpace(t.RequiredCommentText) != "" &&
		t.TargetSteamProfileID != "" &&
		strings.TrimSpace(t.TargetSteamProfileName) != ""
}

// SteamProfile is a Steam identity registered with the reputation service.
// ID is the remote profile id used for task queries.
type SteamProfile struct {
	ID      FlexID `json:"id"`
	SteamID FlexID `json:"steamId"`
	Name    string `json:"name,omitempty"`
}

// CompleteTaskResult is the reputation service's answer to a completion.
type CompleteTaskResult struct {
	Success bool   `json:"success,omitempty"`
	Error   string `json:"error,omitempty"`
}
