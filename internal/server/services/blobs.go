package services

import (
	"context"
	"fmt"
	"time"

	sc "github.com/avaluotech/fieldsync/internal/server/config"
	"github.com/avaluotech/fieldsync/internal/drive"
	"github.com/avaluotech/fieldsync/internal/logging"
)

// BlobForwarder pushes evidence content into the Blob Store on behalf of a
// device, using the bearer the device presented.
type BlobForwarder interface {
	Forward(ctx context.Context, token, caseCode, fileName string, data []byte, contentType string) (remoteRef string, err error)
}

// DriveForwarder is the Blob Store implementation of BlobForwarder. A client
// is built per call because the bearer differs per request; folder
// provisioning stays idempotent on the remote side.
type DriveForwarder struct {
	baseURL  string
	rootName string
	timeout  time.Duration
	logger   logging.Logger
}

func NewDriveForwarder(config *sc.Config, logger logging.Logger) *DriveForwarder {
	return &DriveForwarder{
		baseURL:  config.DriveBaseURL,
		rootName: config.RootFolderName,
		timeout:  config.DriveTimeout,
		logger:   logger,
	}
}

func (d *DriveForwarder) Forward(ctx context.Context, token, caseCode, fileName string, data []byte, contentType string) (string, error) {
	client := drive.NewClient(d.baseURL, drive.StaticToken(token), d.timeout)

	provisioner := drive.NewProvisioner(client, d.rootName, d.logger)
	if _, err := provisioner.EnsureCaseHierarchy(ctx, caseCode); err != nil {
		return "", fmt.Errorf("provisioning case %s: %w", caseCode, err)
	}

	uploader := drive.NewUploader(client, 0, d.logger)
	obj, err := uploader.Upload(ctx, provisioner.CasePath(caseCode, drive.PhotosFolderName, fileName), data, contentType, nil)
	if err != nil {
		return "", fmt.Errorf("forwarding blob %s: %w", fileName, err)
	}

	return obj.ID, nil
}
