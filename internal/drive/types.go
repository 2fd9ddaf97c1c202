package drive

import "context"

// TokenProvider supplies the bearer token attached to every Blob Store call.
// Implementations may refresh or fail; a stale token surfaces as
// common.ErrTokenStale from the call that used it.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenProvider returning a fixed token. The server uses it
// to forward the bearer it received from the device.
type StaticToken string

func (s StaticToken) Token(_ context.Context) (string, error) {
	return string(s), nil
}

// RemoteObject identifies an uploaded blob.
type RemoteObject struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Size   int64  `json:"size"`
	WebURL string `json:"webUrl"`
}

// FolderHandle is the cached mapping target of (parent, name).
type FolderHandle struct {
	ID   string
	Name string
}

// Item is one child entry returned by a folder listing.
type Item struct {
	ID     string       `json:"id"`
	Name   string       `json:"name"`
	Size   int64        `json:"size"`
	Folder *FolderFacet `json:"folder,omitempty"`
	WebURL string       `json:"webUrl"`
}

// FolderFacet is present on Item when the item is a folder.
type FolderFacet struct {
	ChildCount int `json:"childCount"`
}

// IsFolder reports whether the listed item is a folder.
func (i Item) IsFolder() bool { return i.Folder != nil }
