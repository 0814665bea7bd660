package cli

import (
	"context"
	"fmt"

	"github.com/dl-alexandre/gdrv-gateway/internal/api"
	"github.com/dl-alexandre/gdrv-gateway/internal/auth"
	"github.com/dl-alexandre/gdrv-gateway/internal/config"
	"github.com/dl-alexandre/gdrv-gateway/internal/listing"
	"github.com/dl-alexandre/gdrv-gateway/internal/logging"
	"github.com/dl-alexandre/gdrv-gateway/internal/stream"
	"github.com/dl-alexandre/gdrv-gateway/internal/tunnel"
	"google.golang.org/api/option"
)

// gateway holds the wired services behind the HTTP surface
type gateway struct {
	auth    *auth.AuthContext
	client  *api.Client
	tunnel  *tunnel.Proxy
	listing *listing.Service
	stream  *stream.Adapter
}

// keySource picks where the service account key is read from
func keySource(c *config.Config) (auth.KeySource, error) {
	if c.KeyringProfile == "" {
		return auth.FileKeySource{Path: c.ServiceAccountFile}, nil
	}
	store, err := openKeyStore()
	if err != nil {
		return nil, err
	}
	return auth.StoredKeySource{Store: store, Profile: c.KeyringProfile}, nil
}

func openKeyStore() (auth.KeyStore, error) {
	configDir, err := config.GetConfigDir()
	if err != nil {
		return nil, err
	}
	store, notice, err := auth.NewKeyStore(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open key store: %w", err)
	}
	if notice != "" {
		logger.Warn(notice)
	}
	return store, nil
}

// newGateway loads the credential, checks it against the token endpoint
// and wires every service. extra options are passed to the Drive client.
func newGateway(ctx context.Context, c *config.Config, log logging.Logger, extra ...option.ClientOption) (*gateway, error) {
	src, err := keySource(c)
	if err != nil {
		return nil, err
	}

	authCtx, _, err := auth.LoadServiceAccount(ctx, src, c.Scopes, log)
	if err != nil {
		return nil, err
	}

	primeCtx, cancel := context.WithTimeout(ctx, c.GetRequestTimeout())
	defer cancel()
	if err := authCtx.Prime(primeCtx); err != nil {
		return nil, fmt.Errorf("service account credential check failed: %w", err)
	}

	svc, err := auth.NewDriveService(ctx, authCtx, nil, extra...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Drive service: %w", err)
	}

	client := api.NewClient(svc, api.ClientOptions{
		RequestTimeout: c.GetRequestTimeout(),
		ChunkSize:      c.ChunkSize,
		ChunkTimeout:   c.GetChunkTimeout(),
	}, log)

	proxy := tunnel.NewProxy(authCtx, tunnel.Options{
		AllowedHosts: c.TunnelAllowedHosts,
		Timeout:      c.GetRequestTimeout(),
	}, log)

	return &gateway{
		auth:   authCtx,
		client: client,
		tunnel: proxy,
		listing: listing.NewService(client, proxy, listing.Options{
			RootFolder:      c.RootFolder,
			SizeLimitKB:     c.SizeLimitKB,
			DefaultPageSize: c.DefaultPageSize,
			MaxListItems:    c.MaxListItems,
		}, log),
		stream: stream.NewAdapter(client, log),
	}, nil
}
