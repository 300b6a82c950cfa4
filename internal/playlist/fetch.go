package playlist

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/hlsget/internal/types"
	"github.com/tanq16/hlsget/internal/utils"
)

const maxManifestSize = 16 * 1024 * 1024

// Fetch downloads the raw playlist body.
func Fetch(ctx context.Context, client utils.HTTPDoer, manifestURL string, headers map[string]string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, manifestURL, nil)
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		if utils.IsNetworkError(err) {
			return "", fmt.Errorf("error fetching m3u8 manifest: %w: %w", types.ErrNetworkUnavailable, err)
		}
		return "", fmt.Errorf("error fetching m3u8 manifest: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", &types.ServerError{Code: resp.StatusCode}
	}
	content, err := io.ReadAll(io.LimitReader(resp.Body, maxManifestSize))
	if err != nil {
		return "", fmt.Errorf("error reading manifest content: %w", err)
	}
	log.Debug().Str("op", "playlist/fetch").Msgf("Successfully read manifest from %s", manifestURL)
	return string(content), nil
}
