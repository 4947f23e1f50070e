package search

// Query describes one scrapbook search. CallerID widens the match to the
// caller's own private scrapbooks; anonymous callers only see public ones.
type Query struct {
	Text     string
	CallerID string
	Limit    int
	Offset   int
}

type Result struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Snippet  string `json:"snippet"`
	OwnerID  string `json:"ownerId"`
	IsPublic bool   `json:"isPublic"`
}

type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// ScrapbookRecord is the indexed shape of a scrapbook.
type ScrapbookRecord struct {
	ID          string   `json:"id"`
	OwnerID     string   `json:"ownerId"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	IsPublic    bool     `json:"isPublic"`
}
