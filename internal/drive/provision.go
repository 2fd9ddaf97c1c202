package drive

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/avaluotech/fieldsync/internal/common"
	"github.com/avaluotech/fieldsync/internal/logging"
)

// Subfolder names created under every case folder, and the default name of
// the drive-root folder all cases live under.
const (
	PhotosFolderName      = "Fotos"
	FormsFolderName       = "Formularios"
	DefaultRootFolderName = "Peritajes"
)

// CaseFolders holds the provisioned hierarchy for one case.
type CaseFolders struct {
	Case   FolderHandle
	Photos FolderHandle
	Forms  FolderHandle
}

// Provisioner guarantees the remote folder hierarchy exists before any blob
// is written under it. Folder handles are cached for the process lifetime
// (folders are not renamed during a session); the cache is an explicit value
// owned by the instance, not package state.
type Provisioner struct {
	client   *Client
	rootName string
	logger   logging.Logger

	mu    sync.Mutex
	cache map[string]FolderHandle // (parentID, name) -> handle
}

// NewProvisioner returns a Provisioner rooted at rootName under the drive
// root.
func NewProvisioner(client *Client, rootName string, logger logging.Logger) *Provisioner {
	return &Provisioner{
		client:   client,
		rootName: rootName,
		logger:   logger,
		cache:    make(map[string]FolderHandle),
	}
}

func cacheKey(parentID, name string) string {
	return parentID + "\x00" + name
}

func (p *Provisioner) cached(parentID, name string) (FolderHandle, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	h, ok := p.cache[cacheKey(parentID, name)]
	return h, ok
}

func (p *Provisioner) remember(parentID, name string, h FolderHandle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache[cacheKey(parentID, name)] = h
}

// findFolder scans a listing for an exact name + is-folder match.
func findFolder(items []Item, name string) (FolderHandle, bool) {
	for _, item := range items {
		if item.Name == name && item.IsFolder() {
			return FolderHandle{ID: item.ID, Name: item.Name}, true
		}
	}
	return FolderHandle{}, false
}

// EnsureFolder returns the folder named name under parentID, creating it if
// absent. Creation uses fail-on-conflict; losing the race to another creator
// is reconciled by re-listing, so concurrent callers converge on the same
// folder.
func (p *Provisioner) EnsureFolder(ctx context.Context, parentID, name string) (FolderHandle, error) {
	if h, ok := p.cached(parentID, name); ok {
		return h, nil
	}

	items, err := p.client.ListChildren(ctx, parentID)
	if err != nil {
		return FolderHandle{}, fmt.Errorf("ensure folder %q: %w", name, err)
	}
	if h, ok := findFolder(items, name); ok {
		p.remember(parentID, name, h)
		return h, nil
	}

	created, err := p.client.CreateFolder(ctx, parentID, name)
	if err == nil {
		p.remember(parentID, name, *created)
		return *created, nil
	}
	if !errors.Is(err, common.ErrConflict) {
		return FolderHandle{}, fmt.Errorf("ensure folder %q: %w", name, err)
	}

	// Another caller won the race; the folder exists now.
	p.logger.Debug(ctx, "folder create lost race, re-listing", "name", name, "parent", parentID)

	items, err = p.client.ListChildren(ctx, parentID)
	if err != nil {
		return FolderHandle{}, fmt.Errorf("re-listing after conflict on %q: %w", name, err)
	}
	h, ok := findFolder(items, name)
	if !ok {
		return FolderHandle{}, fmt.Errorf("folder %q conflicted but is not listed under %s", name, parentID)
	}
	p.remember(parentID, name, h)
	return h, nil
}

// EnsureCaseHierarchy provisions root → case → {Fotos, Formularios} and
// returns the handles. The root lookup is shared across cases through the
// cache. On any failure no hierarchy is returned and callers must not upload
// under the case this cycle.
func (p *Provisioner) EnsureCaseHierarchy(ctx context.Context, caseCode string) (*CaseFolders, error) {
	if caseCode == "" {
		return nil, fmt.Errorf("%w: empty case code", common.ErrValidation)
	}

	root, err := p.EnsureFolder(ctx, RootID, p.rootName)
	if err != nil {
		return nil, err
	}

	caseFolder, err := p.EnsureFolder(ctx, root.ID, caseCode)
	if err != nil {
		return nil, err
	}

	photos, err := p.EnsureFolder(ctx, caseFolder.ID, PhotosFolderName)
	if err != nil {
		return nil, err
	}

	forms, err := p.EnsureFolder(ctx, caseFolder.ID, FormsFolderName)
	if err != nil {
		return nil, err
	}

	return &CaseFolders{Case: caseFolder, Photos: photos, Forms: forms}, nil
}

// CasePath returns the path-addressed location of a file inside a case
// subfolder, e.g. Peritajes/EXP-01/Fotos/abc.jpg.
func (p *Provisioner) CasePath(caseCode, subfolder, fileName string) string {
	return p.rootName + "/" + caseCode + "/" + subfolder + "/" + fileName
}
