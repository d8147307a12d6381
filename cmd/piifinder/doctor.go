package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"piifinder/internal/infra/config"
)

// CheckStatus represents the result of a health check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
)

// CheckResult holds the outcome of a single health check.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string // optional fix suggestion
}

// Check is a named health check function.
type Check struct {
	Name string
	Fn   func(cfg *config.Config) CheckResult
}

// runDoctor executes all health checks and reports results.
func runDoctor(flags cliFlags, w io.Writer) error {
	cfgPath := configPath(flags)

	// Some checks work without a config.
	cfg, cfgErr := loadConfig(flags)

	checks := []Check{
		{Name: "Config file", Fn: checkConfigFile(cfgPath, cfgErr)},
		{Name: "API key", Fn: checkAPIKey},
		{Name: "AI endpoint", Fn: checkEndpoint},
		{Name: "Selector store", Fn: checkStore},
		{Name: "Chromium", Fn: checkChromium},
	}

	fmt.Fprintln(w, "piifinder doctor")
	fmt.Fprintln(w, strings.Repeat("=", 50))
	fmt.Fprintln(w)

	var pass, warn, fail int
	for _, check := range checks {
		result := check.Fn(cfg)
		result.Name = check.Name

		fmt.Fprintf(w, "  %s %s: %s\n", statusIcon(result.Status), result.Name, result.Message)
		if result.Fix != "" {
			fmt.Fprintf(w, "      Fix: %s\n", result.Fix)
		}

		switch result.Status {
		case StatusPass:
			pass++
		case StatusWarn:
			warn++
		case StatusFail:
			fail++
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.Repeat("-", 50))
	fmt.Fprintf(w, "Results: %d passed, %d warnings, %d failed\n", pass, warn, fail)

	if fail > 0 {
		return fmt.Errorf("%d check(s) failed", fail)
	}
	return nil
}

func statusIcon(s CheckStatus) string {
	switch s {
	case StatusPass:
		return "[PASS]"
	case StatusWarn:
		return "[WARN]"
	case StatusFail:
		return "[FAIL]"
	default:
		return "[????]"
	}
}

// checkConfigFile reports on the config file. A missing file is fine: the
// defaults apply.
func checkConfigFile(cfgPath string, cfgErr error) func(*config.Config) CheckResult {
	return func(_ *config.Config) CheckResult {
		if cfgErr != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("config error: %v", cfgErr),
				Fix:     fmt.Sprintf("Check the syntax and permissions of %s", cfgPath),
			}
		}
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			return CheckResult{
				Status:  StatusPass,
				Message: fmt.Sprintf("no config at %s, using defaults", cfgPath),
			}
		}
		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("config loaded from %s", cfgPath),
		}
	}
}

// checkAPIKey warns when the AI path will always fall back.
func checkAPIKey(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}
	}
	if !cfg.AI.Enabled {
		return CheckResult{Status: StatusPass, Message: "AI disabled, heuristic selectors only"}
	}
	if cfg.AI.APIKey == "" {
		return CheckResult{
			Status:  StatusWarn,
			Message: "no API key, --ai will fall back to the heuristic",
			Fix:     "Set PIIFINDER_AI_API_KEY or GEMINI_API_KEY (a .env next to the config works too)",
		}
	}
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("API key configured for %s (%s)", cfg.AI.Provider, cfg.AI.Model)}
}

// checkEndpoint tests whether the text-generation endpoint is reachable.
func checkEndpoint(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}
	}
	if !cfg.AI.Enabled || cfg.AI.APIKey == "" {
		return CheckResult{Status: StatusWarn, Message: "skipped, AI disabled or no API key"}
	}

	endpoint := strings.TrimRight(cfg.AI.BaseURL, "/") + "/"
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return CheckResult{Status: StatusFail, Message: fmt.Sprintf("failed to create request: %v", err)}
	}
	resp, err := http.DefaultClient.Do(req)
	latency := time.Since(start)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("cannot reach %s: %v", endpoint, err),
			Fix:     "Check your internet connection and firewall settings",
		}
	}
	resp.Body.Close()

	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("%s reachable (latency: %dms)", endpoint, latency.Milliseconds()),
	}
}

// checkStore verifies the store directory exists (or can be created) and is writable.
func checkStore(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}
	}

	absDir, _ := filepath.Abs(filepath.Dir(cfg.Store.Path))
	if err := os.MkdirAll(absDir, 0o700); err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("store directory %s cannot be created: %v", absDir, err),
			Fix:     fmt.Sprintf("Create the directory: mkdir -p %s", absDir),
		}
	}

	testFile := filepath.Join(absDir, ".doctor-check")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("store directory %s is not writable: %v", absDir, err),
			Fix:     fmt.Sprintf("Fix permissions: chmod 700 %s", absDir),
		}
	}
	os.Remove(testFile)

	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("store %s writable", cfg.Store.Path)}
}

// checkChromium looks for a local browser unless a remote one is configured.
func checkChromium(cfg *config.Config) CheckResult {
	if cfg != nil && cfg.Browser.RemoteURL != "" {
		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("remote browser at %s", cfg.Browser.RemoteURL),
		}
	}

	for _, name := range []string{"chromium", "chromium-browser", "google-chrome", "google-chrome-stable"} {
		if path, err := exec.LookPath(name); err == nil {
			return CheckResult{
				Status:  StatusPass,
				Message: fmt.Sprintf("found %s at %s", name, path),
			}
		}
	}
	return CheckResult{
		Status:  StatusWarn,
		Message: "Chromium not found, --url will not work",
		Fix:     "Install Chromium (apt install chromium) or set browser.remote_url",
	}
}
