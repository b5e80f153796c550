package azuredevops

type listResponse[T any] struct {
	Count int `json:"count"`
	Value []T `json:"value"`
}

type projectResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Visibility  string `json:"visibility"`
	State       string `json:"state"`
}

type repositoryResponse struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	URL           string `json:"url"`
	RemoteURL     string `json:"remoteUrl"`
	WebURL        string `json:"webUrl"`
	DefaultBranch string `json:"defaultBranch"`
	Size          int64  `json:"size"`
	IsDisabled    bool   `json:"isDisabled"`
}

type referenceResponse struct {
	Name     string `json:"name"`
	ObjectID string `json:"objectId"`
}

type tfvcItemResponse struct {
	Path     string `json:"path"`
	IsFolder bool   `json:"isFolder"`
}

type tfvcBranchResponse struct {
	Path string `json:"path"`
}

type teamResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type teamMemberResponse struct {
	Identity    identityResponse `json:"identity"`
	IsTeamAdmin bool             `json:"isTeamAdmin"`
}

type identityResponse struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	UniqueName  string `json:"uniqueName"`
	IsContainer bool   `json:"isContainer"`
}

// apiQuery is encoded with go-querystring; zero values are omitted.
type apiQuery struct {
	APIVersion        string `url:"api-version"`
	Top               int    `url:"$top,omitempty"`
	Skip              int    `url:"$skip,omitempty"`
	ContinuationToken string `url:"continuationToken,omitempty"`
	Filter            string `url:"filter,omitempty"`
	ScopePath         string `url:"scopePath,omitempty"`
	RecursionLevel    string `url:"recursionLevel,omitempty"`
}
