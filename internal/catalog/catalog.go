// Package catalog is a minimal HTTP-backed stand-in for the program catalog
// the spec treats as an external collaborator (§1's "catalog scraping" is
// explicitly out of scope). It exists only so cmd/odieux's play/live/Page/
// Random commands have something to resolve against; a real deployment is
// expected to replace it with whatever indexes the operator's HLS source.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Rrogntudju/odieux/internal/httpclient"
	"github.com/Rrogntudju/odieux/internal/player"
)

// Client fetches episode pages and resolves episodes to master playlist
// URLs against a configured base URL, following the shape of a JSON
// directory: GET {base}/emissions/{progID}/{page}.json for a page of
// episodes, GET {base}/episodes/{id}.json for one episode's stream URL.
type Client struct {
	Fetcher *httpclient.Fetcher
	BaseURL string
	LiveURL string
}

type episodeDTO struct {
	Titre string `json:"titre"`
	ID    string `json:"id"`
}

type streamDTO struct {
	MasterURL string `json:"master_url"`
}

// FetchPage implements player.EpisodeSource.
func (c *Client) FetchPage(prog, page int, progID string) ([]player.Episode, error) {
	url := fmt.Sprintf("%s/emissions/%s/%d.json", c.BaseURL, progID, page)
	body, err := c.Fetcher.Get(context.Background(), url)
	if err != nil {
		return nil, fmt.Errorf("catalog: fetching page %d of %s: %w", page, progID, err)
	}

	var dtos []episodeDTO
	if err := json.Unmarshal(body, &dtos); err != nil {
		return nil, fmt.Errorf("catalog: decoding page %d of %s: %w", page, progID, err)
	}

	episodes := make([]player.Episode, len(dtos))
	for i, d := range dtos {
		episodes[i] = player.Episode{Titre: d.Titre, ID: d.ID}
	}
	return episodes, nil
}

// Resolve implements player.URLResolver. The live marker episode resolves
// to the configured live URL without a catalog round trip.
func (c *Client) Resolve(ep player.Episode) (string, error) {
	if ep.Titre == player.LiveTitle {
		if c.LiveURL == "" {
			return "", fmt.Errorf("catalog: no live URL configured")
		}
		return c.LiveURL, nil
	}

	url := fmt.Sprintf("%s/episodes/%s.json", c.BaseURL, ep.ID)
	body, err := c.Fetcher.Get(context.Background(), url)
	if err != nil {
		return "", fmt.Errorf("catalog: resolving episode %s: %w", ep.ID, err)
	}

	var dto streamDTO
	if err := json.Unmarshal(body, &dto); err != nil {
		return "", fmt.Errorf("catalog: decoding episode %s: %w", ep.ID, err)
	}
	return dto.MasterURL, nil
}
