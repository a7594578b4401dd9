package cmd

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/kvcache-calc/kvcache"
	"github.com/inference-sim/kvcache-calc/kvcache/hfconfig"
)

const (
	hubURL          = "https://huggingface.co"
	calcCacheDir    = ".kvcache-calc"
	modelConfigsDir = "model_configs"
	hubTimeout      = 30 * time.Second
)

// hubURLOverride replaces hubURL when set.
var hubURLOverride string

// configLocator finds the config.json of a HuggingFace model id. It looks in
// the user cache, then downloads from the Hub into that cache, then falls
// back to the copies shipped under model_configs/.
type configLocator struct {
	hubURL    string
	cacheRoot string
	bundled   string
	client    *http.Client
}

func newConfigLocator() configLocator {
	base := hubURL
	if hubURLOverride != "" {
		base = hubURLOverride
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return configLocator{
		hubURL:    base,
		cacheRoot: filepath.Join(home, calcCacheDir, modelConfigsDir),
		bundled:   modelConfigsDir,
		client:    &http.Client{Timeout: hubTimeout},
	}
}

// cacheDir flattens "org/name" into a single directory "org-name".
func (l configLocator) cacheDir(model string) string {
	return filepath.Join(l.cacheRoot, strings.ReplaceAll(model, "/", "-"))
}

// bundledDir drops the organization: "org/name" ships as model_configs/name.
func (l configLocator) bundledDir(model string) string {
	_, name, found := strings.Cut(model, "/")
	if !found {
		name = model
	}
	return filepath.Join(l.bundled, name)
}

// locate returns a directory containing config.json for model.
func (l configLocator) locate(model string) (string, error) {
	cached := l.cacheDir(model)
	if hasModelConfig(cached) {
		logrus.Infof("%s: using cached config in %s", model, cached)
		return cached, nil
	}

	dir, downloadErr := l.download(model)
	if downloadErr == nil {
		logrus.Infof("%s: downloaded config to %s", model, dir)
		return dir, nil
	}
	logrus.Warnf("%s: download failed: %v", model, downloadErr)

	bundled := l.bundledDir(model)
	if hasModelConfig(bundled) {
		logrus.Infof("%s: using bundled config in %s", model, bundled)
		return bundled, nil
	}
	return "", fmt.Errorf("no %s for %q (cache %s: missing; hub: %v; bundled %s: missing); pass --model-config-folder",
		hfconfig.FileName, model, cached, downloadErr, bundled)
}

// download fetches config.json from the Hub and writes it to the cache
// only once it parses as a model config.
func (l configLocator) download(model string) (string, error) {
	url := l.hubURL + "/" + model + "/resolve/main/" + hfconfig.FileName
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	if token := os.Getenv("HF_TOKEN"); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return "", hubStatusError(resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", url, err)
	}
	if _, err := hfconfig.Parse(body); err != nil {
		return "", fmt.Errorf("%s: %w", url, err)
	}

	dir := l.cacheDir(model)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(dir, hfconfig.FileName), body, 0o644); err != nil {
		return "", err
	}
	return dir, nil
}

func hubStatusError(code int) error {
	switch code {
	case http.StatusNotFound:
		return errors.New("HTTP 404, check the --hf-model id")
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("HTTP %d, gated model: set HF_TOKEN or add it to ~/%s/.env", code, calcCacheDir)
	default:
		return fmt.Errorf("HTTP %d from the Hub", code)
	}
}

func hasModelConfig(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, hfconfig.FileName))
	return err == nil && !info.IsDir()
}

// loadHFModel reads the architecture of an --hf-model. A non-empty folder
// skips the lookup entirely.
func loadHFModel(model, folder string) (kvcache.ModelConfig, error) {
	if folder == "" {
		dir, err := newConfigLocator().locate(model)
		if err != nil {
			return kvcache.ModelConfig{}, err
		}
		folder = dir
	}
	cfg, err := hfconfig.Load(filepath.Join(folder, hfconfig.FileName))
	if err != nil {
		return kvcache.ModelConfig{}, err
	}
	return cfg.ModelConfig()
}
