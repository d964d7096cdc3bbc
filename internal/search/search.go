package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultWorkspace ResultType = "workspace"
	ResultMessage   ResultType = "message"
	ResultFile      ResultType = "file"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type        ResultType `json:"type"`
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Snippet     string     `json:"snippet"`
	WorkspaceID string     `json:"workspaceId"`
}

// Query describes a search request.
type Query struct {
	Text              string
	FilterType        ResultType // empty = all types
	FilterWorkspaceID string
	// WorkspaceIDs restricts hits to workspaces the caller can access.
	WorkspaceIDs []string
	Limit        int
	Offset       int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push entities into a search index.
type Indexer interface {
	IndexWorkspace(w WorkspaceRecord) error
	IndexMessage(m MessageRecord) error
	IndexFile(f FileRecord) error
	DeleteWorkspace(id string) error
	DeleteFile(id string) error
}

// WorkspaceRecord is the data we index for a workspace.
type WorkspaceRecord struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// MessageRecord is the data we index for a chat message.
type MessageRecord struct {
	ID          string `json:"id"`
	Body        string `json:"body"`
	SenderName  string `json:"senderName"`
	WorkspaceID string `json:"workspaceId"`
}

// FileRecord is the data we index for an uploaded file.
type FileRecord struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	WorkspaceID string `json:"workspaceId"`
}
