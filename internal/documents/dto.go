package documents

import "time"

// DocumentResponse is the outward-facing representation of a document.
type DocumentResponse struct {
	DocumentID            string         `json:"document_id"`
	Filename              string         `json:"filename"`
	DocumentType          string         `json:"document_type"`
	Version               string         `json:"version"`
	ContentType           string         `json:"content_type,omitempty"`
	SizeBytes             int64          `json:"size_bytes"`
	Composition           map[string]int `json:"composition,omitempty"`
	CompositionConfidence string         `json:"composition_confidence,omitempty"`
	Status                string         `json:"status"`
	Progress              int            `json:"progress"`
	UploadedAt            time.Time      `json:"uploaded_at"`
}

func toResponse(doc Document) DocumentResponse {
	return DocumentResponse{
		DocumentID:            doc.ID,
		Filename:              doc.Filename,
		DocumentType:          doc.DocumentType,
		Version:               doc.Version,
		ContentType:           doc.ContentType,
		SizeBytes:             doc.SizeBytes,
		Composition:           doc.Composition,
		CompositionConfidence: doc.CompositionConfidence,
		Status:                doc.Status,
		Progress:              doc.Progress,
		UploadedAt:            doc.CreatedAt,
	}
}
