package search

// Result is a single search hit returned to the caller.
type Result struct {
	ID       string `json:"id"`
	Snippet  string `json:"snippet"`
	Tag      string `json:"tag"`
	Nickname string `json:"nickname"`
}

// Query describes a search request over posts.
type Query struct {
	Text   string
	Tag    string // empty = all tags
	Limit  int
	Offset int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search over posts.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push posts into a search index.
type Indexer interface {
	IndexPost(p PostRecord) error
	DeletePost(id string) error
}

// PostRecord is the data we index for a post.
type PostRecord struct {
	ID       string `json:"id"`
	Body     string `json:"body"`
	Tag      string `json:"tag"`
	Nickname string `json:"nickname"`
}
