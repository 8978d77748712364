// Package rtdb writes the metadata directory to a Firebase-style realtime
// database through its REST interface. Identities live under
// fingerprints/<id>, match events are pushed under matches/.
package rtdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kozaktomas/fingerprint-id/internal/biometric"
	"github.com/kozaktomas/fingerprint-id/internal/database"
)

const (
	identitiesPath = "fingerprints"
	matchesPath    = "matches"
)

// Client talks to one database root.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

var _ database.Directory = (*Client)(nil)

// New creates a client for the database at rawURL. token is sent as the
// auth query parameter when non-empty.
func New(rawURL, token string) (*Client, error) {
	if rawURL == "" {
		return nil, errors.New("realtime database URL is required")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid realtime database URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid realtime database URL scheme %q", u.Scheme)
	}
	return &Client{
		base:  u,
		token: token,
		http:  &http.Client{Timeout: 15 * time.Second},
	}, nil
}

// resolveURL builds <base>/<path>.json with the auth parameter.
func (c *Client) resolveURL(path ...string) string {
	u := c.base.JoinPath(path...)
	u.Path = strings.TrimSuffix(u.Path, "/") + ".json"
	if c.token != "" {
		q := u.Query()
		q.Set("auth", c.token)
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// identityNode is the JSON stored under fingerprints/<id>.
type identityNode struct {
	ID         int64     `json:"id"`
	Alias      string    `json:"name"`
	SampleRef  string    `json:"sample_ref,omitempty"`
	Image      []byte    `json:"image,omitempty"` // base64 PNG
	EnrolledAt time.Time `json:"enrolled_at"`
}

func identityKey(id int64) string {
	return strconv.FormatInt(id, 10)
}

// RecordEnrollment writes the identity node, replacing any previous one.
func (c *Client) RecordEnrollment(ctx context.Context, e biometric.Enrollment) error {
	node := identityNode{
		ID:         e.IdentityID,
		Alias:      e.Alias,
		SampleRef:  e.SampleRef,
		Image:      e.DisplayImage,
		EnrolledAt: e.EnrolledAt.UTC(),
	}
	if _, err := doPutJSON[identityNode](ctx, c, node, identitiesPath, identityKey(e.IdentityID)); err != nil {
		return fmt.Errorf("record enrollment %d: %w", e.IdentityID, err)
	}
	return nil
}

// RecordMatch pushes the event under matches/.
func (c *Client) RecordMatch(ctx context.Context, ev biometric.MatchEvent) error {
	type pushResponse struct {
		Name string `json:"name"`
	}
	if _, err := doPostJSON[pushResponse](ctx, c, ev, matchesPath); err != nil {
		return fmt.Errorf("record match %s: %w", ev.EventID, err)
	}
	return nil
}

// RecordDeletion removes the identity node. Deleting a missing node succeeds.
func (c *Client) RecordDeletion(ctx context.Context, identityID int64) error {
	if _, err := c.do(ctx, http.MethodDelete, nil, []int{http.StatusOK, http.StatusNoContent}, identitiesPath, identityKey(identityID)); err != nil {
		return fmt.Errorf("record deletion %d: %w", identityID, err)
	}
	return nil
}

// Aliases reads all identity nodes.
func (c *Client) Aliases(ctx context.Context) ([]database.IdentityAlias, error) {
	raw, err := doGetJSON[json.RawMessage](ctx, c, identitiesPath)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	nodes, err := decodeNodes(*raw)
	if err != nil {
		return nil, err
	}

	out := make([]database.IdentityAlias, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, database.IdentityAlias{
			IdentityID: n.ID,
			Alias:      n.Alias,
			SampleRef:  n.SampleRef,
			EnrolledAt: n.EnrolledAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IdentityID < out[j].IdentityID })
	return out, nil
}

// decodeNodes accepts the three shapes the database returns for a collection:
// null, an object keyed by id, or an array when the keys are small integers
// (with null holes for missing indices).
func decodeNodes(raw json.RawMessage) ([]identityNode, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}

	if strings.HasPrefix(trimmed, "[") {
		var arr []*identityNode
		if err := json.Unmarshal(raw, &arr); err != nil {
			return nil, fmt.Errorf("decode identity array: %w", err)
		}
		var out []identityNode
		for _, n := range arr {
			if n != nil {
				out = append(out, *n)
			}
		}
		return out, nil
	}

	var obj map[string]*identityNode
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("decode identity map: %w", err)
	}
	out := make([]identityNode, 0, len(obj))
	for key, n := range obj {
		if n == nil {
			continue
		}
		if n.ID == 0 {
			// nodes written by other tools may only carry the key
			if id, err := strconv.ParseInt(key, 10, 64); err == nil {
				n.ID = id
			}
		}
		out = append(out, *n)
	}
	return out, nil
}
