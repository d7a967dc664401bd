package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/mod/modfile"
	"golang.org/x/mod/module"
	"golang.org/x/mod/semver"

	"github.com/redinc23/hathor-red/internal/github"
	"github.com/redinc23/hathor-red/internal/ml"
	"github.com/redinc23/hathor-red/internal/types"
)

const (
	defaultProxyURL = "https://proxy.golang.org"
	defaultOSVURL   = "https://api.osv.dev/v1/querybatch"
	depHTTPTimeout  = 30 * time.Second
)

// Dependency audits the repository's direct Go dependencies: staleness
// against the module proxy and known advisories from OSV. Repositories
// without a go.mod are silently out of scope.
type Dependency struct {
	now      func() time.Time
	client   *http.Client
	proxyURL string
	osvURL   string
}

var _ Oracle = (*Dependency)(nil)

// NewDependency returns the dependency-risk detector.
func NewDependency() *Dependency {
	return &Dependency{
		now:      time.Now,
		client:   &http.Client{Timeout: depHTTPTimeout},
		proxyURL: defaultProxyURL,
		osvURL:   defaultOSVURL,
	}
}

func (o *Dependency) Name() string { return "dependency" }

// Divine fetches go.mod, resolves each direct requirement against the
// proxy's @latest, and checks the set against OSV. Severity is the share
// of stale requirements, floored at 0.6 when any module has a known
// advisory.
func (o *Dependency) Divine(ctx context.Context, owner, repo string, _ *types.RunHistory, gh github.Port) ([]types.HealthSignal, error) {
	now := o.now().UTC()

	content, err := gh.GetFileContent(ctx, owner, repo, "go.mod", "")
	if errors.Is(err, github.ErrFileNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetching go.mod: %w", err)
	}

	mf, err := modfile.Parse("go.mod", []byte(content), nil)
	if err != nil {
		return nil, fmt.Errorf("parsing go.mod: %w", err)
	}

	var direct []module.Version
	for _, req := range mf.Require {
		if req.Indirect {
			continue
		}
		direct = append(direct, req.Mod)
	}
	if len(direct) == 0 {
		return nil, nil
	}

	var (
		stale    []string
		resolved int
		firstErr error
	)
	for _, mod := range direct {
		latest, err := o.latestVersion(ctx, mod.Path)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if latest == "" {
			// Not served by the proxy: private or replaced.
			continue
		}
		resolved++
		if semver.Compare(mod.Version, latest) < 0 {
			stale = append(stale, fmt.Sprintf("%s %s -> %s", mod.Path, mod.Version, latest))
		}
	}
	if resolved == 0 && firstErr != nil {
		return nil, fmt.Errorf("resolving latest versions: %w", firstErr)
	}

	vulnerable := o.vulnerableModules(ctx, direct)

	if len(stale) == 0 && len(vulnerable) == 0 {
		return nil, nil
	}

	severity := float64(len(stale)) / float64(len(direct))
	confidence := 0.7
	if len(vulnerable) > 0 {
		severity = math.Max(severity, 0.6)
		confidence = 0.9
	}

	evidence := map[string]string{
		"total_deps": strconv.Itoa(len(direct)),
		"stale_deps": strconv.Itoa(len(stale)),
	}
	if len(stale) > 0 {
		examples := stale
		if len(examples) > 3 {
			examples = examples[:3]
		}
		evidence["examples"] = strings.Join(examples, "; ")
	}
	if len(vulnerable) > 0 {
		evidence["vulnerable_deps"] = strconv.Itoa(len(vulnerable))
		advisories := vulnerable
		if len(advisories) > 3 {
			advisories = advisories[:3]
		}
		evidence["advisories"] = strings.Join(advisories, "; ")
	}

	description := fmt.Sprintf("%d of %d direct dependencies are behind their latest release",
		len(stale), len(direct))
	if len(vulnerable) > 0 {
		description += fmt.Sprintf(", %d with known advisories", len(vulnerable))
	}

	return []types.HealthSignal{{
		Dimension:       types.DimensionDependency,
		Severity:        severity,
		Confidence:      confidence,
		Description:     description,
		Evidence:        evidence,
		SuggestedAction: "Upgrade stale dependencies before they force a breaking migration",
		AffectedPaths:   []string{"go.mod"},
		DetectedAt:      now,
	}}, nil
}

// Prophesy predicts an upgrade-forced failure for heavily stale trees.
// The probability is the engine's judgment over the staleness features.
func (o *Dependency) Prophesy(ctx context.Context, signal types.HealthSignal, _ *types.RunHistory, engine ml.Engine) (*types.Prophecy, error) {
	if signal.Severity <= 0.6 {
		return nil, nil
	}

	features := map[string]float64{
		ml.FeatureStaleDeps: signal.Severity,
	}
	if v := signal.Evidence["vulnerable_deps"]; v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			features[ml.FeatureVulnerableDeps] = math.Min(float64(n)/3, 1.0)
		}
	}

	probability, err := engine.PredictFailureProbability(ctx, features)
	if err != nil {
		return nil, fmt.Errorf("predicting dependency failure: %w", err)
	}

	return &types.Prophecy{
		Dimension:   signal.Dimension,
		Prediction:  "Stale dependencies force a breaking upgrade under time pressure",
		Probability: probability,
		HorizonDays: 60,
		PreventionSteps: []string{
			"Upgrade the most stale dependencies now, one module at a time",
			"Add a scheduled dependency-update workflow",
		},
	}, nil
}

// latestVersion asks the module proxy for the newest version of a module.
// A module the proxy does not serve resolves to the empty string.
func (o *Dependency) latestVersion(ctx context.Context, modulePath string) (string, error) {
	escaped, err := module.EscapePath(modulePath)
	if err != nil {
		return "", fmt.Errorf("escaping module path: %w", err)
	}
	url := fmt.Sprintf("%s/%s/@latest", o.proxyURL, escaped)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("querying proxy: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return "", nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("proxy returned %d", resp.StatusCode)
	}

	var info struct {
		Version string `json:"Version"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	return info.Version, nil
}

// vulnerableModules batch-queries OSV and returns one "path (ID, ...)"
// entry per module with advisories. Best effort: any failure yields none.
func (o *Dependency) vulnerableModules(ctx context.Context, mods []module.Version) []string {
	type osvPackage struct {
		Name      string `json:"name"`
		Ecosystem string `json:"ecosystem"`
	}
	type osvQuery struct {
		Version string     `json:"version,omitempty"`
		Package osvPackage `json:"package"`
	}

	queries := make([]osvQuery, len(mods))
	for i, mod := range mods {
		queries[i] = osvQuery{
			Version: strings.TrimPrefix(mod.Version, "v"),
			Package: osvPackage{Name: mod.Path, Ecosystem: "Go"},
		}
	}
	body, err := json.Marshal(map[string]interface{}{"queries": queries})
	if err != nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.osvURL, bytes.NewReader(body))
	if err != nil {
		return nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}

	var batch struct {
		Results []struct {
			Vulns []struct {
				ID string `json:"id"`
			} `json:"vulns"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&batch); err != nil {
		return nil
	}

	// Results align by index with the queries.
	var vulnerable []string
	for i, result := range batch.Results {
		if i >= len(mods) || len(result.Vulns) == 0 {
			continue
		}
		ids := make([]string, 0, len(result.Vulns))
		for _, vuln := range result.Vulns {
			ids = append(ids, vuln.ID)
		}
		vulnerable = append(vulnerable, fmt.Sprintf("%s (%s)", mods[i].Path, strings.Join(ids, ", ")))
	}
	return vulnerable
}
