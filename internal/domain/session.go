package domain

import "time"

// SessionStatus is the lifecycle state of a swarm session.
type SessionStatus string

const (
	SessionNotFound            SessionStatus = "not_found"
	SessionInvalid             SessionStatus = "invalid"
	SessionDownloadingMetadata SessionStatus = "downloading_metadata"
	SessionBuffering           SessionStatus = "buffering"
	SessionReady               SessionStatus = "ready"
	SessionFailed              SessionStatus = "failed"
)

// SessionState is a point-in-time snapshot of a swarm session. VideoPath
// and VideoFile are stable once set: the selected file never changes for
// the lifetime of the session.
type SessionState struct {
	InfoHash       string        `json:"infoHash"`
	Status         SessionStatus `json:"status"`
	Progress       float64       `json:"progress"`
	Peers          int           `json:"peers"`
	DownloadSpeed  int64         `json:"downloadSpeed"`
	UploadSpeed    int64         `json:"uploadSpeed"`
	Downloaded     int64         `json:"downloaded"`
	TotalSize      int64         `json:"totalSize,omitempty"`
	ReadyThreshold int64         `json:"readyThreshold,omitempty"`
	VideoFile      string        `json:"videoFile,omitempty"`
	VideoPath      string        `json:"-"`
	Message        string        `json:"message,omitempty"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}

// Playable reports whether the proxy may start serving bytes.
func (s SessionState) Playable() bool {
	return s.Status == SessionReady && s.VideoPath != ""
}
