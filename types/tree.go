package types

// NodeType values as they appear on the wire.
const (
	NodeTypeFile   = "file"
	NodeTypeFolder = "folder"
)

// TreeNode is the JSON shape of a tree node. Name holds the leaf segment only.
type TreeNode struct {
	Name     string     `json:"name"`
	Type     string     `json:"type"`
	Content  *string    `json:"content,omitempty"`  // files only
	Children []TreeNode `json:"children,omitempty"` // folders only
}

// FileData is one entry of the legacy flat listing. Folders end with "/".
type FileData struct {
	Name    string  `json:"name"`
	Content *string `json:"content"`
	Folder  bool    `json:"folder"`
}

// SearchMatch is one line matched by a tree search.
type SearchMatch struct {
	Path    string `json:"path"`
	Line    int    `json:"line"`
	Content string `json:"content"`
}

// CreateNodeRequest is the body of POST /api/tree/:id
type CreateNodeRequest struct {
	Path    string  `json:"path"`
	Type    string  `json:"type"`
	Content *string `json:"content"`
}

// WriteContentRequest is the body of PUT /api/tree/:id/content
type WriteContentRequest struct {
	Path    string  `json:"path"`
	Content *string `json:"content"`
}

type RenameRequest struct {
	Path    string `json:"path"`
	NewName string `json:"newName"`
}

type MoveRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type DuplicateRequest struct {
	Path       string `json:"path"`
	TargetName string `json:"targetName"`
}

// PathResponse returns the path a mutation produced.
type PathResponse struct {
	NewPath string `json:"newPath"`
}

// FileContentResponse is returned by GET /api/tree/:id/file
type FileContentResponse struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Hash    string `json:"hash"`
}

// TreeResponse is returned by GET /api/tree/:id
type TreeResponse struct {
	PublicID string   `json:"publicId"`
	Tree     TreeNode `json:"tree"`
}
