// Package scope resolves the opaque table token a client connects with to
// the menu scope it belongs to, the product list, and a menu snapshot
// formatted for LLM consumption. The menu/order persistence store lives
// in another service; this package only talks to the read endpoint that
// store exposes.
package scope

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/freya-voice/voicecore/pkg/orchestrator"
)

// ErrNotFound is returned when the table token does not resolve to a
// known scope; callers close the connection with code 4004.
var ErrNotFound = errors.New("scope: table token not found")

// Result is what a successful lookup resolves.
type Result struct {
	ScopeID     string
	Products    []orchestrator.Product
	MenuContext string
}

// Client calls the external scope-lookup endpoint over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

type lookupResponse struct {
	ScopeID string `json:"scope_id"`
	Menu    []struct {
		ID          int      `json:"id"`
		Name        string   `json:"name"`
		Price       float64  `json:"price"`
		Category    string   `json:"category"`
		Description string   `json:"description"`
		ImageURL    string   `json:"image_url"`
		Allergens   []string `json:"allergens"`
	} `json:"menu"`
}

// Lookup resolves tableToken to a scope, fetching the menu snapshot in
// the same call. Returns ErrNotFound on a 404 response.
func (c *Client) Lookup(ctx context.Context, tableToken string) (Result, error) {
	url := fmt.Sprintf("%s/api/scope/%s", c.baseURL, tableToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{}, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("scope lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Result{}, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("scope lookup: unexpected status %d", resp.StatusCode)
	}

	var body lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Result{}, fmt.Errorf("scope lookup: decode: %w", err)
	}
	if body.ScopeID == "" {
		return Result{}, ErrNotFound
	}

	products := make([]orchestrator.Product, 0, len(body.Menu))
	for _, m := range body.Menu {
		products = append(products, orchestrator.Product{
			ID:          m.ID,
			Name:        m.Name,
			Price:       m.Price,
			Category:    m.Category,
			Description: m.Description,
			ImageURL:    m.ImageURL,
			Allergens:   m.Allergens,
		})
	}

	return Result{
		ScopeID:     body.ScopeID,
		Products:    products,
		MenuContext: FormatMenuContext(products),
	}, nil
}

// FormatMenuContext renders the product list as the textual menu snapshot
// the session keeps immutably for LLM consumption: one line per item,
// grouped by category.
func FormatMenuContext(products []orchestrator.Product) string {
	byCategory := make(map[string][]orchestrator.Product)
	var order []string
	for _, p := range products {
		if _, seen := byCategory[p.Category]; !seen {
			order = append(order, p.Category)
		}
		byCategory[p.Category] = append(byCategory[p.Category], p)
	}

	var sb strings.Builder
	for _, cat := range order {
		if cat != "" {
			sb.WriteString(cat)
			sb.WriteString(":\n")
		}
		for _, p := range byCategory[cat] {
			fmt.Fprintf(&sb, "- #%d %s ($%.2f)", p.ID, p.Name, p.Price)
			if p.Description != "" {
				fmt.Fprintf(&sb, ": %s", p.Description)
			}
			if len(p.Allergens) > 0 {
				fmt.Fprintf(&sb, " [allergens: %s]", strings.Join(p.Allergens, ", "))
			}
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
