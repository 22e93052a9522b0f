// Package azure writes export artifacts to Azure Blob Storage.
package azure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"github.com/JakeFAU/docket-crawler/internal/crawler"
)

// Config selects the account and container.
type Config struct {
	// ConnectionString is a standard AccountName/AccountKey/BlobEndpoint
	// string. When empty, ServiceURL is used without shared-key auth, e.g.
	// with a SAS token in its query.
	ConnectionString string `mapstructure:"connection_string"`
	ServiceURL       string `mapstructure:"service_url"`
	Container        string `mapstructure:"container"`
	Prefix           string `mapstructure:"prefix"`
}

// BlobStore uploads objects to one container, creating it on first use.
type BlobStore struct {
	client    *azblob.Client
	container string
	prefix    string

	mu            sync.Mutex
	containerInit bool
}

var _ crawler.BlobStore = (*BlobStore)(nil)

// New builds a BlobStore from cfg. No request is made until the first upload.
func New(cfg Config) (*BlobStore, error) {
	if strings.TrimSpace(cfg.Container) == "" {
		return nil, errors.New("container is required")
	}
	client, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	return &BlobStore{
		client:    client,
		container: cfg.Container,
		prefix:    strings.Trim(cfg.Prefix, "/"),
	}, nil
}

func newClient(cfg Config) (*azblob.Client, error) {
	if cfg.ConnectionString == "" {
		if cfg.ServiceURL == "" {
			return nil, errors.New("connection string or service URL is required")
		}
		client, err := azblob.NewClientWithNoCredential(cfg.ServiceURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create blob client: %w", err)
		}
		return client, nil
	}

	params := parseConnectionString(cfg.ConnectionString)
	accountName := params["AccountName"]
	accountKey := params["AccountKey"]
	if accountName == "" || accountKey == "" {
		return nil, errors.New("account name and key are required in the connection string")
	}
	serviceURL := params["BlobEndpoint"]
	if serviceURL == "" {
		serviceURL = fmt.Sprintf("https://%s.blob.core.windows.net", accountName)
	}
	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create shared key credential: %w", err)
	}
	var opts *azblob.ClientOptions
	if strings.HasPrefix(strings.ToLower(serviceURL), "http://") {
		// Azurite and other local emulators.
		opts = &azblob.ClientOptions{
			ClientOptions: azcore.ClientOptions{InsecureAllowCredentialWithHTTP: true},
		}
	}
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, credential, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob client: %w", err)
	}
	return client, nil
}

// PutObject uploads data and returns the blob URL.
func (s *BlobStore) PutObject(ctx context.Context, name string, contentType string, r io.Reader) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", errors.New("path is required")
	}
	if err := s.ensureContainer(ctx); err != nil {
		return "", err
	}
	object := name
	if s.prefix != "" {
		object = path.Join(s.prefix, name)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read object: %w", err)
	}

	var opts azblob.UploadBufferOptions
	if contentType != "" {
		opts.HTTPHeaders = &blob.HTTPHeaders{BlobContentType: to.Ptr(contentType)}
	}
	if _, err := s.client.UploadBuffer(ctx, s.container, object, data, &opts); err != nil {
		return "", fmt.Errorf("blob upload failed: %w", err)
	}
	return s.client.ServiceClient().NewContainerClient(s.container).NewBlobClient(object).URL(), nil
}

func (s *BlobStore) ensureContainer(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.containerInit {
		return nil
	}
	if _, err := s.client.CreateContainer(ctx, s.container, nil); err != nil {
		if !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
			return fmt.Errorf("failed to ensure container: %w", err)
		}
	}
	s.containerInit = true
	return nil
}

func parseConnectionString(connectionString string) map[string]string {
	parts := strings.Split(connectionString, ";")
	params := make(map[string]string, len(parts))
	for _, part := range parts {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || key == "" {
			continue
		}
		params[key] = value
	}
	return params
}
