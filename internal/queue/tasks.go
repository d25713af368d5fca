package queue

const (
	TypeVoiceCleanup = "voice:cleanup"
)

// VoiceCleanupPayload asks the worker to delete a voice file once no record
// points at it any more.
type VoiceCleanupPayload struct {
	VoicePath string `json:"voice_path"`
	RecordID  string `json:"record_id,omitempty"`
	Reason    string `json:"reason,omitempty"` // "deleted" or "renamed"
}
