package cargo

// SearchResultCrate is one crate in search results.
type SearchResultCrate struct {
	Name string `json:"name"`
	// MaxVersion is the highest non-yanked version available.
	MaxVersion   string `json:"max_version"`
	IsDeprecated bool   `json:"isDeprecated"`
	Description  string `json:"description"`
}

// SearchResultsMeta carries the total number of matches on the server, which
// may exceed the number of returned crates.
type SearchResultsMeta struct {
	Total int `json:"total"`
}

// SearchResults is the response of the crate search API.
type SearchResults struct {
	Crates []SearchResultCrate `json:"crates"`
	Meta   SearchResultsMeta   `json:"meta"`
}

// YesNoResult acknowledges an operation such as a yank.
type YesNoResult struct {
	OK bool `json:"ok"`
}

func NewYesNoResult() *YesNoResult {
	return &YesNoResult{OK: true}
}

// YesNoMsgResult acknowledges an operation with a message cargo displays to
// the user.
type YesNoMsgResult struct {
	OK  bool   `json:"ok"`
	Msg string `json:"msg"`
}

func NewYesNoMsgResult(msg string) *YesNoMsgResult {
	return &YesNoMsgResult{OK: true, Msg: msg}
}

// OwnersChangeQuery is the request body for adding or removing crate owners.
// The entries are user logins.
type OwnersChangeQuery struct {
	Users []string `json:"users"`
}

// APIResponseError is one error in a web API response.
type APIResponseError struct {
	Detail string `json:"detail"`
}

// APIResponseErrors is the error envelope cargo expects from registry APIs.
type APIResponseErrors struct {
	Errors []APIResponseError `json:"errors"`
}

func NewAPIResponseErrors(detail string) *APIResponseErrors {
	return &APIResponseErrors{Errors: []APIResponseError{{Detail: detail}}}
}
