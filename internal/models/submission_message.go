package models

// SubmissionMessage is the queue record for one artwork submission
// Used across ingestion, processing, and messaging layers
type SubmissionMessage struct {
	RequestID         string `json:"RequestID"`
	Image             string `json:"Image"` // data URL as received
	Logs              string `json:"Logs"`  // provenance text
	ImageHash         string `json:"ImageHash"`
	ReceivedTimestamp string `json:"ReceivedTimestamp"` // RFC3339Nano
}
