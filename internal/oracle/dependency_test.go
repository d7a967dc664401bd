package oracle

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redinc23/hathor-red/internal/github"
	"github.com/redinc23/hathor-red/internal/ml"
	"github.com/redinc23/hathor-red/internal/types"
)

const testGoMod = `module example.com/service

go 1.22

require (
	example.com/alpha v1.0.0
	example.com/beta v1.5.0
	example.com/gamma v0.3.0 // indirect
)
`

func newTestDependency(proxyURL, osvURL string) *Dependency {
	o := NewDependency()
	o.now = func() time.Time { return checkupTime }
	if proxyURL != "" {
		o.proxyURL = proxyURL
	}
	if osvURL != "" {
		o.osvURL = osvURL
	}
	return o
}

func fakeWithGoMod() *github.Fake {
	fake := github.NewFake()
	fake.Files["go.mod"] = testGoMod
	return fake
}

// proxyServer serves @latest for the given modules and 404s the rest.
func proxyServer(t *testing.T, latest map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for path, version := range latest {
			if r.URL.Path == "/"+path+"/@latest" {
				json.NewEncoder(w).Encode(map[string]string{"Version": version})
				return
			}
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// osvServer answers querybatch with advisories per module name, aligned
// by query index.
func osvServer(t *testing.T, advisories map[string][]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Queries []struct {
				Package struct {
					Name string `json:"name"`
				} `json:"package"`
			} `json:"queries"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		type vuln struct {
			ID string `json:"id"`
		}
		type result struct {
			Vulns []vuln `json:"vulns,omitempty"`
		}
		results := make([]result, len(req.Queries))
		for i, q := range req.Queries {
			for _, id := range advisories[q.Package.Name] {
				results[i].Vulns = append(results[i].Vulns, vuln{ID: id})
			}
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"results": results})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDependencySkipsRepositoriesWithoutGoMod(t *testing.T) {
	o := newTestDependency("", "")

	signals, err := o.Divine(context.Background(), "acme", "widgets", nil, github.NewFake())
	require.NoError(t, err)
	assert.Nil(t, signals)
}

func TestDependencyMalformedGoMod(t *testing.T) {
	fake := github.NewFake()
	fake.Files["go.mod"] = "require ("

	o := newTestDependency("", "")

	_, err := o.Divine(context.Background(), "acme", "widgets", nil, fake)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing go.mod")
}

func TestDependencyFlagsStaleModules(t *testing.T) {
	proxy := proxyServer(t, map[string]string{
		"example.com/alpha": "v1.2.0",
		"example.com/beta":  "v1.5.0",
	})
	osv := osvServer(t, nil)

	o := newTestDependency(proxy.URL, osv.URL)

	signals, err := o.Divine(context.Background(), "acme", "widgets", nil, fakeWithGoMod())
	require.NoError(t, err)
	require.Len(t, signals, 1)

	signal := signals[0]
	assert.Equal(t, types.DimensionDependency, signal.Dimension)
	assert.InDelta(t, 0.5, signal.Severity, 1e-9) // 1 of 2 direct deps stale
	assert.Equal(t, 0.7, signal.Confidence)
	assert.Equal(t, "1 of 2 direct dependencies are behind their latest release", signal.Description)
	assert.Equal(t, "2", signal.Evidence["total_deps"]) // indirect gamma excluded
	assert.Equal(t, "1", signal.Evidence["stale_deps"])
	assert.Equal(t, "example.com/alpha v1.0.0 -> v1.2.0", signal.Evidence["examples"])
	assert.NotContains(t, signal.Evidence, "vulnerable_deps")
	assert.Equal(t, "Upgrade stale dependencies before they force a breaking migration", signal.SuggestedAction)
	assert.Equal(t, []string{"go.mod"}, signal.AffectedPaths)
	assert.Equal(t, checkupTime, signal.DetectedAt)
}

func TestDependencyAllCurrent(t *testing.T) {
	proxy := proxyServer(t, map[string]string{
		"example.com/alpha": "v1.0.0",
		"example.com/beta":  "v1.5.0",
	})
	osv := osvServer(t, nil)

	o := newTestDependency(proxy.URL, osv.URL)

	signals, err := o.Divine(context.Background(), "acme", "widgets", nil, fakeWithGoMod())
	require.NoError(t, err)
	assert.Nil(t, signals)
}

func TestDependencyVulnerabilityFloorsSeverity(t *testing.T) {
	proxy := proxyServer(t, map[string]string{
		"example.com/alpha": "v1.0.0",
		"example.com/beta":  "v1.5.0",
	})
	osv := osvServer(t, map[string][]string{
		"example.com/alpha": {"GO-2026-1234"},
	})

	o := newTestDependency(proxy.URL, osv.URL)

	signals, err := o.Divine(context.Background(), "acme", "widgets", nil, fakeWithGoMod())
	require.NoError(t, err)
	require.Len(t, signals, 1)

	signal := signals[0]
	assert.Equal(t, 0.6, signal.Severity) // nothing stale, floored by the advisory
	assert.Equal(t, 0.9, signal.Confidence)
	assert.Equal(t, "0", signal.Evidence["stale_deps"])
	assert.Equal(t, "1", signal.Evidence["vulnerable_deps"])
	assert.Equal(t, "example.com/alpha (GO-2026-1234)", signal.Evidence["advisories"])
	assert.Equal(t, "0 of 2 direct dependencies are behind their latest release, 1 with known advisories", signal.Description)
}

func TestDependencySkipsModulesTheProxyDoesNotServe(t *testing.T) {
	proxy := proxyServer(t, nil) // everything 404s
	osv := osvServer(t, nil)

	o := newTestDependency(proxy.URL, osv.URL)

	signals, err := o.Divine(context.Background(), "acme", "widgets", nil, fakeWithGoMod())
	require.NoError(t, err)
	assert.Nil(t, signals)
}

func TestDependencyProxyOutage(t *testing.T) {
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend down", http.StatusInternalServerError)
	}))
	t.Cleanup(proxy.Close)
	osv := osvServer(t, nil)

	o := newTestDependency(proxy.URL, osv.URL)

	_, err := o.Divine(context.Background(), "acme", "widgets", nil, fakeWithGoMod())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolving latest versions")
	assert.Contains(t, err.Error(), "proxy returned 500")
}

func TestDependencyToleratesPartialProxyOutage(t *testing.T) {
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/example.com/beta/@latest" {
			json.NewEncoder(w).Encode(map[string]string{"Version": "v2.0.0"})
			return
		}
		http.Error(w, "backend down", http.StatusInternalServerError)
	}))
	t.Cleanup(proxy.Close)
	osv := osvServer(t, nil)

	o := newTestDependency(proxy.URL, osv.URL)

	signals, err := o.Divine(context.Background(), "acme", "widgets", nil, fakeWithGoMod())
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.Equal(t, "example.com/beta v1.5.0 -> v2.0.0", signals[0].Evidence["examples"])
}

func TestDependencyOSVOutageDegradesQuietly(t *testing.T) {
	proxy := proxyServer(t, map[string]string{
		"example.com/alpha": "v1.2.0",
		"example.com/beta":  "v1.5.0",
	})
	osv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend down", http.StatusInternalServerError)
	}))
	t.Cleanup(osv.Close)

	o := newTestDependency(proxy.URL, osv.URL)

	signals, err := o.Divine(context.Background(), "acme", "widgets", nil, fakeWithGoMod())
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.Equal(t, 0.7, signals[0].Confidence)
	assert.NotContains(t, signals[0].Evidence, "vulnerable_deps")
}

func TestDependencyOSVQueryShape(t *testing.T) {
	proxy := proxyServer(t, map[string]string{
		"example.com/alpha": "v1.2.0",
		"example.com/beta":  "v1.5.0",
	})

	bodies := make(chan []byte, 1)
	osv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		select {
		case bodies <- body:
		default:
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"results": []struct{}{{}, {}}})
	}))
	t.Cleanup(osv.Close)

	o := newTestDependency(proxy.URL, osv.URL)

	_, err := o.Divine(context.Background(), "acme", "widgets", nil, fakeWithGoMod())
	require.NoError(t, err)

	var req struct {
		Queries []struct {
			Version string `json:"version"`
			Package struct {
				Name      string `json:"name"`
				Ecosystem string `json:"ecosystem"`
			} `json:"package"`
		} `json:"queries"`
	}
	require.NoError(t, json.Unmarshal(<-bodies, &req))
	require.Len(t, req.Queries, 2)
	assert.Equal(t, "example.com/alpha", req.Queries[0].Package.Name)
	assert.Equal(t, "Go", req.Queries[0].Package.Ecosystem)
	assert.Equal(t, "1.0.0", req.Queries[0].Version) // v prefix stripped for OSV
	assert.Equal(t, "example.com/beta", req.Queries[1].Package.Name)
	assert.Equal(t, "1.5.0", req.Queries[1].Version)
}

// failingEngine stands in for a prediction backend that is down.
type failingEngine struct{}

func (failingEngine) PredictFailureProbability(context.Context, map[string]float64) (float64, error) {
	return 0, assert.AnError
}

func TestDependencyProphecy(t *testing.T) {
	o := newTestDependency("", "")

	t.Run("asks the engine for the probability", func(t *testing.T) {
		signal := types.HealthSignal{
			Dimension: types.DimensionDependency,
			Severity:  0.7,
			Evidence:  map[string]string{"vulnerable_deps": "2"},
		}

		prophecy, err := o.Prophesy(context.Background(), signal, nil, ml.NewHeuristic())
		require.NoError(t, err)
		require.NotNil(t, prophecy)
		assert.Equal(t, types.DimensionDependency, prophecy.Dimension)
		assert.Equal(t, "Stale dependencies force a breaking upgrade under time pressure", prophecy.Prediction)
		assert.Greater(t, prophecy.Probability, 0.0)
		assert.Less(t, prophecy.Probability, 1.0)
		assert.Equal(t, 60, prophecy.HorizonDays)
		assert.Len(t, prophecy.PreventionSteps, 2)
	})

	t.Run("threshold is strict", func(t *testing.T) {
		signal := types.HealthSignal{Dimension: types.DimensionDependency, Severity: 0.6}

		prophecy, err := o.Prophesy(context.Background(), signal, nil, ml.NewHeuristic())
		require.NoError(t, err)
		assert.Nil(t, prophecy)
	})

	t.Run("engine errors propagate", func(t *testing.T) {
		signal := types.HealthSignal{Dimension: types.DimensionDependency, Severity: 0.9}

		_, err := o.Prophesy(context.Background(), signal, nil, failingEngine{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "predicting dependency failure")
	})
}
