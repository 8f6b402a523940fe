// Package subserver implements the controlplane.Client port for panels that
// host instances as children of one shared parent instance. Creation,
// deletion, suspension and resizing are scoped under the parent's namespace;
// environment variables cannot be set at creation time and are applied
// afterwards through the startup variable surface.
package subserver

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/guildhost/guildhost/internal/adapter/panelapi"
	"github.com/guildhost/guildhost/internal/domain/resource"
	"github.com/guildhost/guildhost/internal/port/controlplane"
)

const dialectName = "subserver"

// envFallbackPath is where variables missing from the template's declared set
// are written instead of silently dropping the write.
const envFallbackPath = "/.env"

// Client speaks the sub-server dialect of the panel API.
type Client struct {
	t      *panelapi.Transport
	ops    panelapi.ServerOps
	parent string
}

// NewClient creates a sub-server dialect client scoped under the given parent
// instance identifier.
func NewClient(settings controlplane.Settings) *Client {
	t := panelapi.New(settings.BaseURL, settings.APIKey, settings.Timeout)
	if settings.Breaker != nil {
		t.SetBreaker(settings.Breaker)
	}
	return &Client{
		t:      t,
		ops:    panelapi.ServerOps{T: t},
		parent: settings.ParentIdentifier,
	}
}

func (c *Client) Name() string { return dialectName }

func (c *Client) parentPath(suffix string) string {
	return "/api/client/servers/" + c.parent + "/subservers" + suffix
}

// CreateInstance creates a child instance under the parent. The dialect
// ignores spec.Environment: the panel rejects environment at creation time,
// so callers apply variables afterwards via SetEnvironmentVariables.
func (c *Client) CreateInstance(ctx context.Context, spec controlplane.CreateSpec) (*controlplane.Instance, error) {
	body := map[string]any{
		"name":        spec.Name,
		"description": spec.Description,
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

	data, err := c.t.Do(ctx, "POST", c.parentPath(""), body)
	if err != nil {
		return nil, fmt.Errorf("create subserver %s: %w", spec.Name, err)
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

func (c *Client) GetInstance(ctx context.Context, identifier string) (*controlplane.Instance, error) {
	return c.ops.GetInstance(ctx, identifier)
}

func (c *Client) GetUsage(ctx context.Context, identifier string) (*controlplane.Usage, error) {
	return c.ops.GetUsage(ctx, identifier)
}

// DeleteInstance removes the child instance. Idempotent: a 404 means the
// instance is already gone and is treated as successful deletion.
func (c *Client) DeleteInstance(ctx context.Context, id int) error {
	if err := c.t.DoTolerant(ctx, "DELETE", c.parentPath("/"+strconv.Itoa(id)), nil); err != nil {
		return fmt.Errorf("delete subserver %d: %w", id, err)
	}
	return nil
}

func (c *Client) Suspend(ctx context.Context, id int) error {
	if err := c.t.DoTolerant(ctx, "POST", c.parentPath("/"+strconv.Itoa(id)+"/suspend"), nil); err != nil {
		return fmt.Errorf("suspend subserver %d: %w", id, err)
	}
	return nil
}

func (c *Client) Resume(ctx context.Context, id int) error {
	if err := c.t.DoTolerant(ctx, "POST", c.parentPath("/"+strconv.Itoa(id)+"/unsuspend"), nil); err != nil {
		return fmt.Errorf("unsuspend subserver %d: %w", id, err)
	}
	return nil
}

func (c *Client) Resize(ctx context.Context, id int, res resource.Envelope) error {
	body := map[string]any{
		"limits": map[string]int{
			"memory": res.MemoryMB,
			"cpu":    res.CPUPercent,
			"disk":   res.DiskMB,
		},
		"feature_limits": map[string]int{
			"backups":   res.Backups,
			"databases": res.Databases,
		},
	}
	if _, err := c.t.Do(ctx, "PATCH", c.parentPath("/"+strconv.Itoa(id)+"/limits"), body); err != nil {
		return fmt.Errorf("resize subserver %d: %w", id, err)
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

// SetEnvironmentVariables writes each variable through the instance's startup
// surface. Variables the template does not declare cannot be written there;
// they are collected into a generated .env file pushed to the instance, and
// their names are returned so the caller can log the fallback.
func (c *Client) SetEnvironmentVariables(ctx context.Context, inst controlplane.Instance, vars map[string]string) ([]string, error) {
	declared, err := c.declaredVariables(ctx, inst.Identifier)
	if err != nil {
		return nil, err
	}

	fallback := map[string]string{}
	for key, value := range vars {
		if !declared[key] {
			fallback[key] = value
			continue
		}
		body := map[string]string{"key": key, "value": value}
		if _, err := c.t.Do(ctx, "PUT", "/api/client/servers/"+inst.Identifier+"/startup/variable", body); err != nil {
			return nil, fmt.Errorf("set variable %s on %s: %w", key, inst.Identifier, err)
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

// declaredVariables lists the env variable names the instance's startup
// template declares.
func (c *Client) declaredVariables(ctx context.Context, identifier string) (map[string]bool, error) {
	data, err := c.t.Get(ctx, "/api/client/servers/"+identifier+"/startup")
	if err != nil {
		return nil, fmt.Errorf("list startup variables for %s: %w", identifier, err)
	}

	var resp struct {
		Data []struct {
			Attributes struct {
				EnvVariable string `json:"env_variable"`
			} `json:"attributes"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("parse startup variables: %w", err)
	}

	declared := make(map[string]bool, len(resp.Data))
	for _, v := range resp.Data {
		declared[v.Attributes.EnvVariable] = true
	}
	return declared, nil
}

func (c *Client) WaitForReady(ctx context.Context, identifier string, maxWait time.Duration) error {
	return c.ops.WaitForReady(ctx, identifier, maxWait)
}
