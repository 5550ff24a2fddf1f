package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/vk/wormhole/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
)

// fileRoot decodes the top-level blocks of a configuration file. Every block
// is optional.
type fileRoot struct {
	Server   *serverBlock   `hcl:"server,block"`
	Tracking *trackingBlock `hcl:"tracking,block"`
	Render   *renderBlock   `hcl:"render,block"`
	HTTP     *httpBlock     `hcl:"http,block"`
	Log      *logBlock      `hcl:"log,block"`
}

type serverBlock struct {
	URL                *string `hcl:"url,optional"`
	Transport          *string `hcl:"transport,optional"`
	Namespace          *string `hcl:"namespace,optional"`
	InsecureSkipVerify *bool   `hcl:"insecure_skip_verify,optional"`
	Cookie             *string `hcl:"cookie,optional"`
	ReconnectDelay     *string `hcl:"reconnect_delay,optional"`
}

type trackingBlock struct {
	BackupInterval *string `hcl:"backup_interval,optional"`
	AutoTrack      *bool   `hcl:"auto_track,optional"`
}

type renderBlock struct {
	Kind *string `hcl:"kind,optional"`
	Path *string `hcl:"path,optional"`
}

type httpBlock struct {
	Port *int `hcl:"port,optional"`
}

type logBlock struct {
	Level  *string `hcl:"level,optional"`
	Format *string `hcl:"format,optional"`
}

// Load reads the HCL file at path on top of Default. An empty path returns
// the defaults unchanged. The result is not validated.
func Load(ctx context.Context, path string) (*Config, error) {
	if path == "" {
		ctxlog.FromContext(ctx).Debug("No config file given, using defaults.")
		return Default(), nil
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return Parse(ctx, src, path)
}

// Parse decodes HCL source. filename is only used in diagnostics.
func Parse(ctx context.Context, src []byte, filename string) (*Config, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL config loading started.", "file", filename)

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}

	var root fileRoot
	diags = gohcl.DecodeBody(file.Body, evalContext(), &root)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", filename, diags)
	}

	cfg := Default()
	if err := root.apply(cfg); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", filename, err)
	}

	logger.Debug("HCL config loading complete.", "file", filename)
	return cfg, nil
}

// evalContext exposes the process environment as env.NAME.
func evalContext() *hcl.EvalContext {
	vars := make(map[string]cty.Value)
	for _, e := range os.Environ() {
		name, value, ok := strings.Cut(e, "=")
		if ok && hclsyntax.ValidIdentifier(name) {
			vars[name] = cty.StringVal(value)
		}
	}
	env := cty.EmptyObjectVal
	if len(vars) > 0 {
		env = cty.ObjectVal(vars)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{"env": env},
	}
}

func (r *fileRoot) apply(cfg *Config) error {
	if s := r.Server; s != nil {
		setString(&cfg.Server.URL, s.URL)
		setString(&cfg.Server.Transport, s.Transport)
		setString(&cfg.Server.Namespace, s.Namespace)
		setString(&cfg.Server.Cookie, s.Cookie)
		if s.InsecureSkipVerify != nil {
			cfg.Server.InsecureSkipVerify = *s.InsecureSkipVerify
		}
		if err := setDuration(&cfg.Server.ReconnectDelay, s.ReconnectDelay, "server.reconnect_delay"); err != nil {
			return err
		}
	}
	if t := r.Tracking; t != nil {
		if err := setDuration(&cfg.Tracking.BackupInterval, t.BackupInterval, "tracking.backup_interval"); err != nil {
			return err
		}
		if t.AutoTrack != nil {
			cfg.Tracking.AutoTrack = *t.AutoTrack
		}
	}
	if rb := r.Render; rb != nil {
		setString(&cfg.Render.Kind, rb.Kind)
		setString(&cfg.Render.Path, rb.Path)
	}
	if h := r.HTTP; h != nil && h.Port != nil {
		cfg.HTTP.Port = *h.Port
	}
	if l := r.Log; l != nil {
		setString(&cfg.Log.Level, l.Level)
		setString(&cfg.Log.Format, l.Format)
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *string, name string) error {
	if v == nil {
		return nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = d
	return nil
}
