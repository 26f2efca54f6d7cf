package domain

import "time"

// Chunk metadata keys stored alongside every vector
const (
	MetadataKeySource  = "source"
	MetadataKeyChunkID = "chunk_id"
	MetadataKeyPage    = "page"
	MetadataKeyLink    = "drive_link"
	MetadataKeyFileID  = "drive_file_id"
)

// Document is the relational record of an uploaded file
type Document struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	SharedLink string    `json:"shared_link"`
	ExternalID string    `json:"external_id"`
	UserID     int64     `json:"user_id"`
	ChunkCount int       `json:"chunk_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at,omitempty"`
}

// Chunk is a slice of document text ready for the retrieval store
type Chunk struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata"`
}

// SearchHit is one nearest-neighbour match
type SearchHit struct {
	Content    string            `json:"content"`
	Metadata   map[string]string `json:"metadata"`
	Similarity float32           `json:"similarity"`
}

// CollectionInfo describes the vector collection
type CollectionInfo struct {
	Name   string `json:"collection_name"`
	Count  int    `json:"document_count"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// StoredChunk is one indexed chunk as listed for administrators
type StoredChunk struct {
	ID          string            `json:"id"`
	Content     string            `json:"content"`
	FullContent string            `json:"full_content"`
	Metadata    map[string]string `json:"metadata"`
}

// ChunkListing is the collection summary plus a page of its chunks
type ChunkListing struct {
	CollectionInfo CollectionInfo `json:"collection_info"`
	Documents      []StoredChunk  `json:"documents"`
}

// DeleteResult reports a bulk chunk deletion
type DeleteResult struct {
	DeletedCount int    `json:"deleted_chunks"`
	ExternalID   string `json:"g_file_id,omitempty"`
	Message      string `json:"message,omitempty"`
	Error        string `json:"error,omitempty"`
}

// SubsystemReport records what one subsystem did during a bulk delete
type SubsystemReport struct {
	Deleted int      `json:"deleted"`
	Errors  []string `json:"errors"`
}

// DeleteAllReport is the advisory result of deleting every document
type DeleteAllReport struct {
	Database      SubsystemReport `json:"database"`
	VectorStore   SubsystemReport `json:"vector_store"`
	DocumentStore SubsystemReport `json:"document_store"`
	Summary       DeleteSummary   `json:"summary"`
}

// DeleteSummary totals a DeleteAllReport
type DeleteSummary struct {
	TotalDeleted     int  `json:"total_deleted"`
	TotalErrors      int  `json:"total_errors"`
	Success          bool `json:"success"`
	SystemsProcessed int  `json:"systems_processed"`
}

// Summarize fills in the report summary from the subsystem reports
func (r *DeleteAllReport) Summarize() {
	parts := []SubsystemReport{r.Database, r.VectorStore, r.DocumentStore}
	r.Summary = DeleteSummary{SystemsProcessed: len(parts)}
	for _, p := range parts {
		r.Summary.TotalDeleted += p.Deleted
		r.Summary.TotalErrors += len(p.Errors)
	}
	r.Summary.Success = r.Summary.TotalErrors == 0
}

// DocumentListResponse is the response for listing documents
type DocumentListResponse struct {
	Documents []*Document `json:"documents"`
	Total     int         `json:"total"`
	Page      int         `json:"page"`
	PageSize  int         `json:"page_size"`
}
