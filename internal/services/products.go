package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rapidex-app/whatsapp-gateway/internal/models"
	"github.com/rapidex-app/whatsapp-gateway/internal/storage"
)

// Attached product photos are capped so a mis-sized upload in the
// panel cannot blow up the send path.
const maxPhotoBytes = 5 << 20

// ProductLookup answers price inquiries: substring catalog search plus
// photo resolution for inline attachments.
type ProductLookup struct {
	store  storage.Store
	client *http.Client
}

// NewProductLookup creates the lookup service. A nil client gets a
// default with a 15s timeout.
func NewProductLookup(store storage.Store, client *http.Client) *ProductLookup {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &ProductLookup{store: store, client: client}
}

// Find returns the first product of the store whose name contains term
// (case-insensitive), or nil when nothing matches. No match is not an
// error; the pipeline falls through to later stages.
func (p *ProductLookup) Find(storeEID, term string) (*models.Product, error) {
	return p.store.FindProductByName(storeEID, term)
}

// FetchPhoto downloads the product photo for inline attachment. Any
// failure here must downgrade the reply to text-only, never fail the
// inquiry, so callers treat the error as advisory.
func (p *ProductLookup) FetchPhoto(ctx context.Context, photoURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, photoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build photo request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch photo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch photo: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPhotoBytes))
	if err != nil {
		return nil, fmt.Errorf("read photo: %w", err)
	}
	return data, nil
}
