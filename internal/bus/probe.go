package bus

import (
	"context"
	"fmt"
	"net/http"
	"time"

	apperrors "github.com/focusflow/host/internal/errors"
)

// Probe checks that a relay answers on addr by requesting its status page.
func Probe(ctx context.Context, addr string) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/status", nil)
	if err != nil {
		return fmt.Errorf("build status request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeBusUnavailable, "relay unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apperrors.New(apperrors.CodeBusUnavailable, fmt.Sprintf("relay status %d", resp.StatusCode))
	}
	return nil
}
