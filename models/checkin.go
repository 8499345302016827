package models

// CheckinRequest is the heartbeat payload sent on every poll cycle.
type CheckinRequest struct {
	CurrentMedia  string         `json:"current_media,omitempty"`
	ClientVersion string         `json:"client_version"`
	LastError     string         `json:"last_error,omitempty"`
	CommandResult *CommandResult `json:"command_result,omitempty"`
	Timestamp     string         `json:"timestamp"`
}

// CommandResult acknowledges a previously delivered command. It rides along
// on the next successful checkin after execution.
type CommandResult struct {
	Command string `json:"command"`
	Success bool   `json:"success"`
	Detail  string `json:"detail,omitempty"`
}

// AssignmentStamp is the lightweight change marker the server returns on
// checkin. The agent only fetches the full assignment when the stamp moves,
// so an unchanged assignment costs one request per cycle and zero downloads.
type AssignmentStamp struct {
	PlaylistID  *int64 `json:"playlist_id"`
	MediaID     *int64 `json:"media_id"`
	LastUpdated string `json:"last_updated"`
}

func (s AssignmentStamp) Empty() bool {
	return s.PlaylistID == nil && s.MediaID == nil
}

func (s AssignmentStamp) Equal(other AssignmentStamp) bool {
	if !int64PtrEqual(s.PlaylistID, other.PlaylistID) {
		return false
	}
	if !int64PtrEqual(s.MediaID, other.MediaID) {
		return false
	}
	return s.LastUpdated == other.LastUpdated
}

func int64PtrEqual(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

type CheckinResponse struct {
	Status           string          `json:"status"`
	Assignment       AssignmentStamp `json:"assignment"`
	Command          string          `json:"command,omitempty"`
	CommandTimestamp string          `json:"command_timestamp,omitempty"`
}
