// Package storage exports seller settlement statements to Cloud Storage and signs short-lived
// download links for them.
package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"

	"github.com/boibabu/api/internal/domain"
	"github.com/boibabu/api/internal/platform/auth"
)

const (
	defaultLinkTTL = 5 * time.Minute
	maxLinkTTL     = 15 * time.Minute
)

var (
	ErrPermissionDenied = errors.New("storage: permission denied")
	errLinkTTL          = errors.New("storage: link lifetime exceeds 15m")
)

// ObjectWriter stores object bytes.
type ObjectWriter interface {
	Write(ctx context.Context, bucket, object, contentType string, data []byte) error
}

type GCSWriter struct {
	client *gcs.Client
}

func NewGCSWriter(client *gcs.Client) (*GCSWriter, error) {
	if client == nil {
		return nil, errors.New("storage: client is required")
	}
	return &GCSWriter{client: client}, nil
}

// Write uploads data in one request; statements are small.
func (w *GCSWriter) Write(ctx context.Context, bucket, object, contentType string, data []byte) error {
	ow := w.client.Bucket(bucket).Object(object).NewWriter(ctx)
	ow.ContentType = contentType
	ow.ChunkSize = 0
	if _, err := ow.Write(data); err != nil {
		_ = ow.Close()
		return fmt.Errorf("storage: write gs://%s/%s: %w", bucket, object, err)
	}
	if err := ow.Close(); err != nil {
		return fmt.Errorf("storage: finalise gs://%s/%s: %w", bucket, object, err)
	}
	return nil
}

// StatementStore keeps statements under statements/sellers/{sellerID}/ in one bucket.
type StatementStore struct {
	bucket string
	writer ObjectWriter
	signer Signer
	now    func() time.Time
}

func NewStatementStore(bucket string, writer ObjectWriter, signer Signer) (*StatementStore, error) {
	bucket = strings.TrimSpace(bucket)
	switch {
	case bucket == "":
		return nil, errors.New("storage: statements bucket is required")
	case writer == nil:
		return nil, errors.New("storage: writer is required")
	case signer == nil || signer.Email() == "":
		return nil, errors.New("storage: signer is required")
	}
	return &StatementStore{bucket: bucket, writer: writer, signer: signer, now: time.Now}, nil
}

func (s *StatementStore) Upload(ctx context.Context, object, contentType string, data []byte) error {
	return s.writer.Write(ctx, s.bucket, object, contentType, data)
}

// SignedURL signs a V4 GET link that downloads object as a CSV attachment.
func (s *StatementStore) SignedURL(ctx context.Context, object string, ttl time.Duration) (domain.SignedDownload, error) {
	if ttl <= 0 {
		ttl = defaultLinkTTL
	}
	if ttl > maxLinkTTL {
		return domain.SignedDownload{}, errLinkTTL
	}
	expires := s.now().Add(ttl)
	link, err := gcs.SignedURL(s.bucket, object, &gcs.SignedURLOptions{
		GoogleAccessID: s.signer.Email(),
		Scheme:         gcs.SigningSchemeV4,
		Method:         "GET",
		Expires:        expires,
		QueryParameters: url.Values{
			"response-content-disposition": {fmt.Sprintf("attachment; filename=%q", path.Base(object))},
			"response-content-type":        {"text/csv"},
		},
		SignBytes: func(payload []byte) ([]byte, error) {
			return s.signer.SignBytes(ctx, payload)
		},
	})
	if err != nil {
		return domain.SignedDownload{}, fmt.Errorf("storage: sign %s: %w", object, err)
	}
	return domain.SignedDownload{Bucket: s.bucket, Object: object, URL: link, ExpiresAt: expires}, nil
}

// StatementObject names the object for a seller's statement generated at.
func StatementObject(sellerID string, at time.Time) (string, error) {
	sellerID = strings.TrimSpace(sellerID)
	if sellerID == "" || strings.ContainsAny(sellerID, `/\`) || strings.Contains(sellerID, "..") {
		return "", fmt.Errorf("storage: invalid seller id %q", sellerID)
	}
	return fmt.Sprintf("statements/sellers/%s/statement-%s.csv", sellerID, at.UTC().Format("20060102T150405Z")), nil
}

// AuthorizeDownload lets a seller fetch their own statements and admins fetch any.
func AuthorizeDownload(identity *auth.Identity, sellerID string) error {
	if identity == nil {
		return ErrPermissionDenied
	}
	if (sellerID != "" && identity.UID == sellerID) || identity.HasRole(auth.RoleAdmin) {
		return nil
	}
	return ErrPermissionDenied
}
