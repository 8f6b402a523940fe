package panelapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/guildhost/guildhost/internal/domain/resource"
	"github.com/guildhost/guildhost/internal/port/controlplane"
)

// readyPollInterval is the fixed sleep between WaitForReady polls; the wait
// never busy-loops.
const readyPollInterval = 5 * time.Second

// ServerOps bundles the per-instance operations both dialects share. They all
// go through the panel's client surface, addressed by the instance's short
// identifier.
type ServerOps struct {
	T *Transport
}

// serverAttributes mirrors the JSON envelope the panel wraps instance details in.
type serverAttributes struct {
	Attributes struct {
		InternalID int    `json:"internal_id"`
		Identifier string `json:"identifier"`
		UUID       string `json:"uuid"`
		Status     string `json:"status"`
		Limits     struct {
			Memory int `json:"memory"`
			CPU    int `json:"cpu"`
			Disk   int `json:"disk"`
		} `json:"limits"`
		FeatureLimits struct {
			Backups   int `json:"backups"`
			Databases int `json:"databases"`
		} `json:"feature_limits"`
	} `json:"attributes"`
}

func (a *serverAttributes) toInstance() *controlplane.Instance {
	return &controlplane.Instance{
		ID:         a.Attributes.InternalID,
		Identifier: a.Attributes.Identifier,
		UUID:       a.Attributes.UUID,
		Status:     a.Attributes.Status,
		Limits: resource.Envelope{
			MemoryMB:   a.Attributes.Limits.Memory,
			CPUPercent: a.Attributes.Limits.CPU,
			DiskMB:     a.Attributes.Limits.Disk,
			Backups:    a.Attributes.FeatureLimits.Backups,
			Databases:  a.Attributes.FeatureLimits.Databases,
		},
	}
}

// GetInstance fetches the normalized instance record.
func (o ServerOps) GetInstance(ctx context.Context, identifier string) (*controlplane.Instance, error) {
	data, err := o.T.Get(ctx, "/api/client/servers/"+identifier)
	if err != nil {
		return nil, fmt.Errorf("get instance %s: %w", identifier, err)
	}

	var attrs serverAttributes
	if err := json.Unmarshal(data, &attrs); err != nil {
		return nil, fmt.Errorf("parse instance %s: %w", identifier, err)
	}
	return attrs.toInstance(), nil
}

// GetUsage reads the live resource counters and converts them to percentages
// of the instance's current limits.
func (o ServerOps) GetUsage(ctx context.Context, identifier string) (*controlplane.Usage, error) {
	inst, err := o.GetInstance(ctx, identifier)
	if err != nil {
		return nil, err
	}

	data, err := o.T.Get(ctx, "/api/client/servers/"+identifier+"/resources")
	if err != nil {
		return nil, fmt.Errorf("get usage %s: %w", identifier, err)
	}

	var res struct {
		Attributes struct {
			Resources struct {
				MemoryBytes int64   `json:"memory_bytes"`
				CPUAbsolute float64 `json:"cpu_absolute"`
				DiskBytes   int64   `json:"disk_bytes"`
			} `json:"resources"`
		} `json:"attributes"`
	}
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("parse usage %s: %w", identifier, err)
	}

	usage := &controlplane.Usage{}
	r := res.Attributes.Resources
	if inst.Limits.MemoryMB > 0 {
		usage.MemoryPercent = float64(r.MemoryBytes) / float64(int64(inst.Limits.MemoryMB)*1024*1024) * 100
	}
	if inst.Limits.CPUPercent > 0 {
		usage.CPUPercent = r.CPUAbsolute / float64(inst.Limits.CPUPercent) * 100
	}
	if inst.Limits.DiskMB > 0 {
		usage.DiskPercent = float64(r.DiskBytes) / float64(int64(inst.Limits.DiskMB)*1024*1024) * 100
	}
	return usage, nil
}

// SendPowerSignal sends a power action. Empty response bodies and 404s are
// success: the latter means the instance no longer exists.
func (o ServerOps) SendPowerSignal(ctx context.Context, identifier string, signal controlplane.PowerSignal) error {
	body := map[string]string{"signal": string(signal)}
	if err := o.T.DoTolerant(ctx, "POST", "/api/client/servers/"+identifier+"/power", body); err != nil {
		return fmt.Errorf("power %s %s: %w", signal, identifier, err)
	}
	return nil
}

// RunCommand executes a console command on the instance. Same tolerant
// semantics as SendPowerSignal.
func (o ServerOps) RunCommand(ctx context.Context, identifier, command string) error {
	body := map[string]string{"command": command}
	if err := o.T.DoTolerant(ctx, "POST", "/api/client/servers/"+identifier+"/command", body); err != nil {
		return fmt.Errorf("run command on %s: %w", identifier, err)
	}
	return nil
}

// PushFile uploads content to filePath on the instance. Missing parent
// directories are created first, then the panel's two-step signed-URL
// protocol uploads the content multipart against the issued URL.
func (o ServerOps) PushFile(ctx context.Context, identifier, filePath string, content []byte) error {
	dir := path.Dir(filePath)
	if err := o.ensureDir(ctx, identifier, dir); err != nil {
		return err
	}

	data, err := o.T.Get(ctx, "/api/client/servers/"+identifier+"/files/upload")
	if err != nil {
		return fmt.Errorf("request upload url for %s: %w", identifier, err)
	}

	var signed struct {
		Attributes struct {
			URL string `json:"url"`
		} `json:"attributes"`
	}
	if err := json.Unmarshal(data, &signed); err != nil {
		return fmt.Errorf("parse upload url: %w", err)
	}

	uploadURL := signed.Attributes.URL
	if dir != "/" && dir != "." {
		sep := "?"
		if strings.Contains(uploadURL, "?") {
			sep = "&"
		}
		uploadURL += sep + "directory=" + url.QueryEscape(dir)
	}

	if err := o.T.Upload(ctx, uploadURL, path.Base(filePath), content); err != nil {
		return fmt.Errorf("upload %s to %s: %w", filePath, identifier, err)
	}
	return nil
}

// ensureDir creates each missing segment of dir, parent first. The panel
// returns success for already-existing folders.
func (o ServerOps) ensureDir(ctx context.Context, identifier, dir string) error {
	if dir == "/" || dir == "." || dir == "" {
		return nil
	}

	segments := strings.Split(strings.Trim(dir, "/"), "/")
	root := "/"
	for _, seg := range segments {
		body := map[string]string{"root": root, "name": seg}
		if err := o.T.DoTolerant(ctx, "POST", "/api/client/servers/"+identifier+"/files/create-folder", body); err != nil {
			return fmt.Errorf("create folder %s/%s on %s: %w", root, seg, identifier, err)
		}
		root = path.Join(root, seg)
	}
	return nil
}

// WaitForReady polls the instance status until it leaves "installing" or
// maxWait elapses. A 403 returns immediately: without polling access the
// caller proceeds optimistically rather than blocking.
func (o ServerOps) WaitForReady(ctx context.Context, identifier string, maxWait time.Duration) error {
	deadline := time.Now().Add(maxWait)
	for {
		inst, err := o.GetInstance(ctx, identifier)
		if err != nil {
			if controlplane.IsForbidden(err) {
				return nil
			}
			return err
		}
		if inst.Status != "installing" {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("instance %s still installing after %s", identifier, maxWait)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(readyPollInterval):
		}
	}
}
