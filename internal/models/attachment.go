package models

// Attachment kind discriminators, chosen from the declared MIME prefix.
const (
	AttachmentImage = "image"
	AttachmentVideo = "video"
	AttachmentAudio = "audio"
	AttachmentFile  = "file"
)

// Attachment is an inline-encoded file carried by a message. Data is a
// data URL so the whole attachment travels inside the message document.
type Attachment struct {
	Name       string  `json:"name"`
	Data       string  `json:"data"`
	Type       string  `json:"type"`
	Size       int64   `json:"size"`
	Duration   float64 `json:"duration,omitempty"`
	UploadedAt string  `json:"uploadedAt"`
}
