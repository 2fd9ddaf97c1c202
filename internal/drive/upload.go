package drive

import (
	"context"
	"fmt"

	"github.com/avaluotech/fieldsync/internal/common"
	"github.com/avaluotech/fieldsync/internal/logging"
)

const (
	// SimpleUploadLimit is the routing threshold: payloads at or above it go
	// through a chunked session, smaller ones through a single PUT.
	SimpleUploadLimit = 4 << 20 // 4 MiB

	// ChunkAlignment is the byte alignment the store requires for every
	// chunk except the last.
	ChunkAlignment = 320 << 10 // 320 KiB

	// DefaultChunkSize is used when no chunk size is configured.
	DefaultChunkSize = 10 * ChunkAlignment
)

// ProgressFunc is invoked after each acknowledged transfer step with the
// number of bytes the store has confirmed so far.
type ProgressFunc func(bytesSent, totalBytes int64)

// UploadSession tracks one in-flight chunked transfer. It lives only for the
// duration of a single Upload call: a failed chunk or a process restart
// abandons the session and the next attempt restarts from byte 0.
type UploadSession struct {
	RemotePath string
	SessionURL string
	TotalBytes int64
	BytesSent  int64
}

// Uploader decides between single-shot and chunked uploads and performs the
// transfer.
type Uploader struct {
	client    *Client
	chunkSize int64
	logger    logging.Logger
}

// NewUploader builds an Uploader. chunkSize must be a positive multiple of
// ChunkAlignment; anything else falls back to DefaultChunkSize.
func NewUploader(client *Client, chunkSize int64, logger logging.Logger) *Uploader {
	if chunkSize <= 0 || chunkSize%ChunkAlignment != 0 {
		chunkSize = DefaultChunkSize
	}
	return &Uploader{client: client, chunkSize: chunkSize, logger: logger}
}

// Upload transfers data to remotePath and returns the resulting object.
// Zero-length payloads are rejected. progress may be nil.
func (u *Uploader) Upload(ctx context.Context, remotePath string, data []byte, contentType string, progress ProgressFunc) (*RemoteObject, error) {
	total := int64(len(data))
	if total == 0 {
		return nil, fmt.Errorf("%w: empty payload for %s", common.ErrValidation, remotePath)
	}

	if total < SimpleUploadLimit {
		obj, err := u.client.PutContent(ctx, remotePath, data, contentType)
		if err != nil {
			return nil, err
		}
		if progress != nil {
			progress(total, total)
		}
		return obj, nil
	}

	return u.uploadChunked(ctx, remotePath, data, progress)
}

func (u *Uploader) uploadChunked(ctx context.Context, remotePath string, data []byte, progress ProgressFunc) (*RemoteObject, error) {
	total := int64(len(data))

	sessionURL, err := u.client.CreateUploadSession(ctx, remotePath)
	if err != nil {
		return nil, err
	}

	session := &UploadSession{
		RemotePath: remotePath,
		SessionURL: sessionURL,
		TotalBytes: total,
	}

	u.logger.Debug(ctx, "upload session opened",
		"path", remotePath, "total_bytes", total, "chunk_size", u.chunkSize)

	var final *RemoteObject
	for session.BytesSent < total {
		start := session.BytesSent
		end := start + u.chunkSize
		if end > total {
			end = total
		}

		obj, err := u.client.UploadChunk(ctx, session.SessionURL, data[start:end], start, total)
		if err != nil {
			// The whole session is abandoned; the caller retries from byte 0.
			return nil, fmt.Errorf("upload of %s failed at offset %d: %w", remotePath, start, err)
		}

		session.BytesSent = end
		final = obj

		if progress != nil {
			progress(session.BytesSent, total)
		}
	}

	if final == nil {
		return nil, fmt.Errorf("store never confirmed final chunk for %s", remotePath)
	}

	u.logger.Debug(ctx, "upload session finished", "path", remotePath, "id", final.ID)

	return final, nil
}
