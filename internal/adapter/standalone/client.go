// Package standalone implements the controlplane.Client port for panels where
// every instance is a first-class object placed on a compute node from a
// blueprint. Environment variables are supplied at creation time; network
// allocation is either picked from the node's free pool or left to the panel
// to auto-assign.
package standalone

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/guildhost/guildhost/internal/adapter/panelapi"
	"github.com/guildhost/guildhost/internal/domain/resource"
	"github.com/guildhost/guildhost/internal/port/controlplane"
)

const dialectName = "standalone"

const envFallbackPath = "/.env"

// variableCacheTTL bounds how long a blueprint's declared variable set is
// reused before it is refetched.
const variableCacheTTL = 10 * time.Minute

// Client speaks the standalone dialect of the panel API.
type Client struct {
	t   *panelapi.Transport
	ops panelapi.ServerOps

	nodeID      int
	blueprintID int
	accountID   int
	dockerImage string

	// variables caches blueprint id -> declared env variable names so
	// SetEnvironmentVariables does not refetch the blueprint per call.
	variables *ristretto.Cache[int, []string]
}

// NewClient creates a standalone dialect client for the given placement target.
func NewClient(settings controlplane.Settings) (*Client, error) {
	t := panelapi.New(settings.BaseURL, settings.APIKey, settings.Timeout)
	if settings.Breaker != nil {
		t.SetBreaker(settings.Breaker)
	}

	cache, err := ristretto.NewCache(&ristretto.Config[int, []string]{
		NumCounters: 1 << 10,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("variable cache: %w", err)
	}

	return &Client{
		t:           t,
		ops:         panelapi.ServerOps{T: t},
		nodeID:      settings.NodeID,
		blueprintID: settings.BlueprintID,
		accountID:   settings.AccountID,
		dockerImage: settings.DockerImage,
		variables:   cache,
	}, nil
}

func (c *Client) Name() string { return dialectName }

// CreateInstance creates a first-class instance against the configured node
// and blueprint. When no free allocation can be enumerated (permission error
// or empty list), creation proceeds without pinning one: the panel is trusted
// to auto-assign.
func (c *Client) CreateInstance(ctx context.Context, spec controlplane.CreateSpec) (*controlplane.Instance, error) {
	body := map[string]any{
		"name":        spec.Name,
		"description": spec.Description,
		"user":        c.accountID,
		"blueprint":   c.blueprintID,
		"node":        c.nodeID,
		"environment": spec.Environment,
		"limits": map[string]int{
			"memory": spec.Resources.MemoryMB,
			"cpu":    spec.Resources.CPUPercent,
			"disk":   spec.Resources.DiskMB,
		},
		"feature_limits": map[string]int{
			"backups":   spec.Resources.Backups,
			"databases": spec.Resources.Databases,
		},
	}
	if c.dockerImage != "" {
		body["docker_image"] = c.dockerImage
	}

	if allocation, ok := c.freeAllocation(ctx); ok {
		body["allocation"] = map[string]int{"default": allocation}
	}

	data, err := c.t.Do(ctx, "POST", "/api/application/servers", body)
	if err != nil {
		return nil, fmt.Errorf("create server %s: %w", spec.Name, err)
	}

	var attrs struct {
		Attributes struct {
			ID         int    `json:"id"`
			Identifier string `json:"identifier"`
			UUID       string `json:"uuid"`
			Status     string `json:"status"`
		} `json:"attributes"`
	}
	if err := json.Unmarshal(data, &attrs); err != nil {
		return nil, fmt.Errorf("parse create response: %w", err)
	}

	return &controlplane.Instance{
		ID:         attrs.Attributes.ID,
		Identifier: attrs.Attributes.Identifier,
		UUID:       attrs.Attributes.UUID,
		Status:     attrs.Attributes.Status,
		Limits:     spec.Resources,
	}, nil
}

// freeAllocation enumerates the node's allocations and returns the id of the
// first unassigned one. Any failure, or an empty pool, returns ok=false so
// the caller proceeds without a pinned allocation instead of failing.
func (c *Client) freeAllocation(ctx context.Context) (int, bool) {
	data, err := c.t.Get(ctx, "/api/application/nodes/"+strconv.Itoa(c.nodeID)+"/allocations")
	if err != nil {
		slog.Debug("allocation listing unavailable, panel will auto-assign", "node", c.nodeID, "error", err)
		return 0, false
	}

	var resp struct {
		Data []struct {
			Attributes struct {
				ID       int  `json:"id"`
				Assigned bool `json:"assigned"`
			} `json:"attributes"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return 0, false
	}

	for _, a := range resp.Data {
		if !a.Attributes.Assigned {
			return a.Attributes.ID, true
		}
	}
	return 0, false
}

func (c *Client) GetInstance(ctx context.Context, identifier string) (*controlplane.Instance, error) {
	return c.ops.GetInstance(ctx, identifier)
}

func (c *Client) GetUsage(ctx context.Context, identifier string) (*controlplane.Usage, error) {
	return c.ops.GetUsage(ctx, identifier)
}

// DeleteInstance removes the instance. Idempotent: 404 is success.
func (c *Client) DeleteInstance(ctx context.Context, id int) error {
	if err := c.t.DoTolerant(ctx, "DELETE", "/api/application/servers/"+strconv.Itoa(id), nil); err != nil {
		return fmt.Errorf("delete server %d: %w", id, err)
	}
	return nil
}

func (c *Client) Suspend(ctx context.Context, id int) error {
	if err := c.t.DoTolerant(ctx, "POST", "/api/application/servers/"+strconv.Itoa(id)+"/suspend", nil); err != nil {
		return fmt.Errorf("suspend server %d: %w", id, err)
	}
	return nil
}

func (c *Client) Resume(ctx context.Context, id int) error {
	if err := c.t.DoTolerant(ctx, "POST", "/api/application/servers/"+strconv.Itoa(id)+"/unsuspend", nil); err != nil {
		return fmt.Errorf("unsuspend server %d: %w", id, err)
	}
	return nil
}

func (c *Client) Resize(ctx context.Context, id int, res resource.Envelope) error {
	body := map[string]any{
		"memory": res.MemoryMB,
		"cpu":    res.CPUPercent,
		"disk":   res.DiskMB,
		"feature_limits": map[string]int{
			"backups":   res.Backups,
			"databases": res.Databases,
		},
	}
	if _, err := c.t.Do(ctx, "PATCH", "/api/application/servers/"+strconv.Itoa(id)+"/build", body); err != nil {
		return fmt.Errorf("resize server %d: %w", id, err)
	}
	return nil
}

func (c *Client) SendPowerSignal(ctx context.Context, identifier string, signal controlplane.PowerSignal) error {
	return c.ops.SendPowerSignal(ctx, identifier, signal)
}

func (c *Client) RunCommand(ctx context.Context, identifier, command string) error {
	return c.ops.RunCommand(ctx, identifier, command)
}

func (c *Client) PushFile(ctx context.Context, identifier, path string, content []byte) error {
	return c.ops.PushFile(ctx, identifier, path, content)
}

// SetEnvironmentVariables patches the declared variables through the server's
// startup configuration in one call. Variables the blueprint does not declare
// go to the generated .env fallback file instead of silently failing; their
// names are returned.
func (c *Client) SetEnvironmentVariables(ctx context.Context, inst controlplane.Instance, vars map[string]string) ([]string, error) {
	declared, err := c.declaredVariables(ctx)
	if err != nil {
		return nil, err
	}

	known := map[string]string{}
	fallback := map[string]string{}
	for key, value := range vars {
		if declared[key] {
			known[key] = value
		} else {
			fallback[key] = value
		}
	}

	if len(known) > 0 {
		body := map[string]any{"environment": known}
		if _, err := c.t.Do(ctx, "PATCH", "/api/application/servers/"+strconv.Itoa(inst.ID)+"/startup", body); err != nil {
			return nil, fmt.Errorf("patch startup for server %d: %w", inst.ID, err)
		}
	}

	if len(fallback) == 0 {
		return nil, nil
	}

	names := make([]string, 0, len(fallback))
	for key := range fallback {
		names = append(names, key)
	}
	sort.Strings(names)

	var sb strings.Builder
	for _, key := range names {
		sb.WriteString(key)
		sb.WriteByte('=')
		sb.WriteString(fallback[key])
		sb.WriteByte('\n')
	}
	if err := c.PushFile(ctx, inst.Identifier, envFallbackPath, []byte(sb.String())); err != nil {
		return nil, fmt.Errorf("push env fallback to %s: %w", inst.Identifier, err)
	}
	return names, nil
}

// declaredVariables returns the blueprint's declared env variable names,
// served from the ristretto cache when fresh.
func (c *Client) declaredVariables(ctx context.Context) (map[string]bool, error) {
	toSet := func(names []string) map[string]bool {
		set := make(map[string]bool, len(names))
		for _, n := range names {
			set[n] = true
		}
		return set
	}

	if names, ok := c.variables.Get(c.blueprintID); ok {
		return toSet(names), nil
	}

	data, err := c.t.Get(ctx, "/api/application/blueprints/"+strconv.Itoa(c.blueprintID)+"/variables")
	if err != nil {
		return nil, fmt.Errorf("list blueprint %d variables: %w", c.blueprintID, err)
	}

	var resp struct {
		Data []struct {
			Attributes struct {
				EnvVariable string `json:"env_variable"`
			} `json:"attributes"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("parse blueprint variables: %w", err)
	}

	names := make([]string, 0, len(resp.Data))
	for _, v := range resp.Data {
		names = append(names, v.Attributes.EnvVariable)
	}

	c.variables.SetWithTTL(c.blueprintID, names, int64(len(names)+1), variableCacheTTL)
	c.variables.Wait()
	return toSet(names), nil
}

func (c *Client) WaitForReady(ctx context.Context, identifier string, maxWait time.Duration) error {
	return c.ops.WaitForReady(ctx, identifier, maxWait)
}
