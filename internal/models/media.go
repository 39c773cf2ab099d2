package models

// UploadResult is the blob store's answer to an upload.
type UploadResult struct {
	URL       string    `json:"url"`
	MediaType MediaType `json:"media_type"`
	MIME      string    `json:"mime"`
}

type DisplayName struct {
	ID          string `json:"id,omitempty"`
	DisplayName string `json:"display_name"`
}
