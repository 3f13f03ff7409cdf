// internal/vault/vault.go
//
// Vault client wrapper for tenantstore.
//
// Context
// -------
//   - Provides a concurrency-safe client around the HashiCorp Vault Go SDK.
//   - Adds background token renewal, simple KV-v2 helpers, and per-key caching.
//   - Resolves the `vault:<mount>/<path>#<key>` references the config loader
//     finds in YAML or env, typically datasource passwords.
//
// Public workflow
// ---------------
//  1. cli, err := vault.New(ctx)                    // during boot.
//  2. cfg, err := config.Load(ctx, cli)             // resolves references.
//  3. pw,  err := cli.GetKV(ctx, path, key, ttl)    // anywhere in the app.
//
// Notes
// -----
//   - Oxford commas, two spaces after periods, no m-dash.
package vault

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	vault "github.com/hashicorp/vault/api"
	"go.uber.org/zap"
)

//
// SECTION 1.  References
//

// RefPrefix marks a string as a secret reference.
const RefPrefix = "vault:"

// DefaultTTL caches resolved references for the life of a config load.
const DefaultTTL = 5 * time.Minute

// ErrBadRef is returned for strings that carry the prefix but do not parse.
var ErrBadRef = errors.New("vault: malformed reference")

// Ref is a parsed `vault:<path>#<key>` reference.  Path includes the mount.
type Ref struct {
	Path string
	Key  string
}

func (r Ref) String() string { return RefPrefix + r.Path + "#" + r.Key }

// IsRef reports whether s carries the reference prefix.
func IsRef(s string) bool { return strings.HasPrefix(s, RefPrefix) }

// ParseRef parses `vault:secret/app/db#password`.  Both the path (with at
// least a mount and one segment) and the key are required.
func ParseRef(s string) (Ref, error) {
	if !IsRef(s) {
		return Ref{}, fmt.Errorf("%w: %q lacks %q prefix", ErrBadRef, s, RefPrefix)
	}
	body := strings.TrimPrefix(s, RefPrefix)
	path, key, ok := strings.Cut(body, "#")
	if !ok || key == "" {
		return Ref{}, fmt.Errorf("%w: %q has no #key", ErrBadRef, s)
	}
	path = strings.Trim(path, "/")
	if mount, rel := splitMount(path); mount == "" || rel == "" {
		return Ref{}, fmt.Errorf("%w: %q needs <mount>/<path>", ErrBadRef, s)
	}
	return Ref{Path: path, Key: key}, nil
}

//
// SECTION 2.  Client
//

// KV reads one KV-v2 secret.  The production implementation wraps the
// SDK; tests substitute a map.
type KV interface {
	Get(ctx context.Context, mount, path string) (map[string]any, error)
}

type sdkKV struct{ api *vault.Client }

func (s sdkKV) Get(ctx context.Context, mount, path string) (map[string]any, error) {
	sec, err := s.api.KVv2(mount).Get(ctx, path)
	if err != nil {
		return nil, err
	}
	return sec.Data, nil
}

// Client is safe for concurrent use.  Create once at startup.  Zero value
// is invalid.
type Client struct {
	api *vault.Client
	kv  KV

	cacheMu sync.RWMutex
	cache   map[string]cached // canonical path#key → value + expiry.
}

type cached struct {
	val string
	exp time.Time
}

// New constructs a Vault client and starts a background token-renewal loop
// bound to ctx.
//
// Environment expectations
// ------------------------
// • VAULT_ADDR   – scheme and host of the Vault server.
// • VAULT_TOKEN  – initial token (falls back to ~/.vault-token).
func New(ctx context.Context) (*Client, error) {
	cfg := vault.DefaultConfig()
	if err := cfg.ReadEnvironment(); err != nil {
		return nil, fmt.Errorf("vault env cfg: %w", err)
	}

	apiCli, err := vault.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("vault api: %w", err)
	}

	if tok := os.Getenv("VAULT_TOKEN"); tok != "" {
		apiCli.SetToken(tok)
	}

	c := &Client{
		api:   apiCli,
		kv:    sdkKV{api: apiCli},
		cache: make(map[string]cached),
	}

	go c.renewLoop(ctx)

	return c, nil
}

// NewWithKV builds a client over kv without token renewal.
func NewWithKV(kv KV) *Client {
	return &Client{kv: kv, cache: make(map[string]cached)}
}

// GetKV fetches a single key from a KV-v2 secret.  If ttl > 0 the result is
// cached for that duration.  Subsequent callers within the TTL receive the
// cached copy.
func (c *Client) GetKV(ctx context.Context, secretPath, key string, ttl time.Duration) (string, error) {
	if secretPath == "" || key == "" {
		return "", errors.New("secret path and key must be non-empty")
	}

	canonical := secretPath + "#" + key

	if ttl > 0 {
		c.cacheMu.RLock()
		if cv, ok := c.cache[canonical]; ok && time.Now().Before(cv.exp) {
			c.cacheMu.RUnlock()
			return cv.val, nil
		}
		c.cacheMu.RUnlock()
	}

	mount, rel := splitMount(secretPath)
	data, err := c.kv.Get(ctx, mount, rel)
	if err != nil {
		return "", fmt.Errorf("vault get %s: %w", secretPath, err)
	}

	raw, ok := data[key]
	if !ok {
		return "", fmt.Errorf("key %q not found in secret %q", key, secretPath)
	}

	sval, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("value at %s#%s is not a string", secretPath, key)
	}

	if ttl > 0 {
		c.cacheMu.Lock()
		c.cache[canonical] = cached{val: sval, exp: time.Now().Add(ttl)}
		c.cacheMu.Unlock()
	}

	return sval, nil
}

// Resolve parses ref and fetches the value it names, cached for
// DefaultTTL.
func (c *Client) Resolve(ctx context.Context, ref string) (string, error) {
	r, err := ParseRef(ref)
	if err != nil {
		return "", err
	}
	zap.S().Debugw("vault reference lookup", "path", r.Path, "key", r.Key)
	return c.GetKV(ctx, r.Path, r.Key, DefaultTTL)
}

//
// SECTION 3.  Background token renewal
//

func (c *Client) renewLoop(ctx context.Context) {
	log := zap.S().With("component", "vault")
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// Probe the current token.
		sec, err := c.api.Auth().Token().RenewSelfWithContext(ctx, 0)
		if err != nil {
			log.Warnw("token renew self failed", "err", err)
			sleep(ctx, 30*time.Second)
			continue
		}

		if sec == nil || sec.Auth == nil || !sec.Auth.Renewable {
			log.Infow("token is not renewable, sleeping", "for", time.Hour)
			sleep(ctx, time.Hour)
			continue
		}

		watcher, err := c.api.NewLifetimeWatcher(&vault.LifetimeWatcherInput{
			Secret: sec,
		})
		if err != nil {
			log.Warnw("lifetime watcher init failed", "err", err)
			sleep(ctx, 30*time.Second)
			continue
		}

		if !c.watch(ctx, watcher, log) {
			return
		}
		sleep(ctx, 15*time.Second)
	}
}

// watch runs one watcher until it stops.  It returns false when ctx ended.
func (c *Client) watch(ctx context.Context, w *vault.LifetimeWatcher, log *zap.SugaredLogger) bool {
	go w.Start()
	defer w.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case err := <-w.DoneCh():
			if err != nil {
				log.Warnw("token renewal stopped", "err", err)
			}
			return true
		case ev := <-w.RenewCh():
			if ev != nil && ev.Secret != nil && ev.Secret.Auth != nil {
				log.Debugw("token renewed", "ttl_seconds", ev.Secret.Auth.LeaseDuration)
			}
		}
	}
}

//
// SECTION 4.  Helpers
//

func splitMount(p string) (mount, rel string) {
	if p == "" {
		return "", ""
	}
	parts := strings.SplitN(p, "/", 2)
	mount = parts[0]
	if len(parts) == 2 {
		rel = parts[1]
	}
	return
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
