package evidence

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/google/uuid"

	"github.com/aegisproof/aegis/pkg/lifecycle"
)

const contentTypeJSON = "application/json"

type blobStore struct {
	client    *azblob.Client
	container string
	maxList   int32
	logger    *slog.Logger
}

// NewBlobStore creates a Store backed by Azure Blob Storage. Write-once
// semantics use If-None-Match on upload; tip compare-and-swap uses the
// ETag returned by the preceding read.
func NewBlobStore(cfg *Config, logger *slog.Logger) (Store, error) {
	client, err := azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("create evidence client: %w", err)
	}

	return &blobStore{
		client:    client,
		container: cfg.ContainerName,
		maxList:   cfg.MaxListSize,
		logger:    logger.With("system", "evidence"),
	}, nil
}

func (b *blobStore) Start(lc *lifecycle.Coordinator) error {
	b.logger.Info("starting evidence store")

	lc.OnStartup(func() {
		_, err := b.client.CreateContainer(lc.Context(), b.container, nil)
		if err != nil {
			if !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
				b.logger.Error("evidence container initialization failed", "error", err)
				return
			}
		}

		b.logger.Info("evidence container ready", "container", b.container)
	})

	return nil
}

func (b *blobStore) Put(ctx context.Context, rec *Record) error {
	key := rec.Key()
	if err := validateKey(key); err != nil {
		return err
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", key, err)
	}

	opts := &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{
			BlobContentType: to.Ptr(contentTypeJSON),
		},
		AccessConditions: &blob.AccessConditions{
			ModifiedAccessConditions: &blob.ModifiedAccessConditions{
				IfNoneMatch: to.Ptr(azcore.ETagAny),
			},
		},
	}

	if _, err := b.client.UploadBuffer(ctx, b.container, key, data, opts); err != nil {
		if bloberror.HasCode(err, bloberror.BlobAlreadyExists, bloberror.ConditionNotMet) {
			return ErrExists
		}
		return fmt.Errorf("upload record %s: %w", key, err)
	}

	return nil
}

func (b *blobStore) Get(ctx context.Context, domain string, instanceID, proofID uuid.UUID) (*Record, error) {
	key := Key(domain, instanceID, proofID)
	if err := validateKey(key); err != nil {
		return nil, err
	}

	data, _, err := b.download(ctx, key)
	if err != nil {
		return nil, err
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", key, err)
	}

	return &rec, nil
}

func (b *blobStore) Delete(ctx context.Context, domain string, instanceID, proofID uuid.UUID) error {
	key := Key(domain, instanceID, proofID)
	if err := validateKey(key); err != nil {
		return err
	}

	if _, err := b.client.DeleteBlob(ctx, b.container, key, nil); err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete record %s: %w", key, err)
	}
	return nil
}

func (b *blobStore) List(ctx context.Context, domain, datePrefix string, max int) ([]*Record, error) {
	if max <= 0 || max > int(b.maxList) {
		max = int(b.maxList)
	}

	pager := b.client.NewListBlobsFlatPager(b.container, &azblob.ListBlobsFlatOptions{
		Prefix: to.Ptr(domain + "/"),
	})

	var out []*Record
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list records for %s: %w", domain, err)
		}

		for _, item := range page.Segment.BlobItems {
			if item.Name == nil || strings.HasSuffix(*item.Name, "/tip.json") {
				continue
			}

			data, _, err := b.download(ctx, *item.Name)
			if err != nil {
				return nil, err
			}

			var rec Record
			if err := json.Unmarshal(data, &rec); err != nil {
				return nil, fmt.Errorf("decode record %s: %w", *item.Name, err)
			}

			if datePrefix != "" && !strings.HasPrefix(rec.CreatedAt.UTC().Format("2006-01-02"), datePrefix) {
				continue
			}
			out = append(out, &rec)
		}
	}

	sortRecords(out)
	if len(out) > max {
		out = out[:max]
	}
	return out, nil
}

func (b *blobStore) Tip(ctx context.Context, domain string) (*Tip, string, error) {
	data, etag, err := b.download(ctx, TipKey(domain))
	if err != nil {
		if err == ErrNotFound {
			return genesisTip(domain), "", nil
		}
		return nil, "", err
	}

	var tip Tip
	if err := json.Unmarshal(data, &tip); err != nil {
		return nil, "", fmt.Errorf("decode tip for %s: %w", domain, err)
	}

	return &tip, etag, nil
}

func (b *blobStore) SetTip(ctx context.Context, domain string, tip *Tip, version string) error {
	data, err := json.Marshal(tip)
	if err != nil {
		return fmt.Errorf("encode tip for %s: %w", domain, err)
	}

	conditions := &blob.ModifiedAccessConditions{}
	if version == "" {
		conditions.IfNoneMatch = to.Ptr(azcore.ETagAny)
	} else {
		conditions.IfMatch = to.Ptr(azcore.ETag(version))
	}

	opts := &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{
			BlobContentType: to.Ptr(contentTypeJSON),
		},
		AccessConditions: &blob.AccessConditions{
			ModifiedAccessConditions: conditions,
		},
	}

	if _, err := b.client.UploadBuffer(ctx, b.container, TipKey(domain), data, opts); err != nil {
		if bloberror.HasCode(err, bloberror.ConditionNotMet, bloberror.BlobAlreadyExists) {
			return ErrCASConflict
		}
		return fmt.Errorf("advance tip for %s: %w", domain, err)
	}

	return nil
}

func (b *blobStore) download(ctx context.Context, key string) ([]byte, string, error) {
	resp, err := b.client.DownloadStream(ctx, b.container, key, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, "", ErrNotFound
		}
		return nil, "", fmt.Errorf("download %s: %w", key, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", key, err)
	}

	etag := ""
	if resp.ETag != nil {
		etag = string(*resp.ETag)
	}
	return data, etag, nil
}

func validateKey(key string) error {
	if key == "" || strings.Contains(key, "..") {
		return ErrInvalidKey
	}
	return nil
}
