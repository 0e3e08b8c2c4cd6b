package index

import "github.com/starford/nodeflow/internal/request"

// FlowIndex defines the flow indexing operations consumers depend on.
type FlowIndex interface {
	UpsertFlow(f FlowRow, body string) error
	DeleteFlow(id string) error
	GetChecksum(id string) (string, error)
	GetFlow(id string) (*FlowRow, error)
	ListFlows(limit, offset int, nodeType, sort string) ([]FlowRow, int, error)
	Search(query string, limit int) ([]SearchResult, error)
	AllChecksums() (map[string]string, error)
	Close() error
}

var (
	_ FlowIndex           = (*DB)(nil)
	_ request.CookieStore = (*DB)(nil)
)
