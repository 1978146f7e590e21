// Package ml implements the ML Scorer: feature engineering over
// transaction history plus dual-booster gradient-boosted-tree
// inference for the ML rule kind.
package ml

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dmitryikh/leaves"
	"github.com/fraudrules/fraudrules/internal/domain"
)

// Model is one loaded model artifact: an ordered feature-column list
// plus a required primary booster and an optional secondary booster.
type Model struct {
	UUID         string
	Features     []string
	FeatureIndex map[string]int

	Primary   *leaves.Ensemble // required, XGBoost JSON
	Secondary *leaves.Ensemble // optional, LightGBM text; stage-1/observability only
}

// Cache loads and memoizes Model artifacts by UUID, keyed under a
// configured directory, matching the spec's "stateless per request but
// caches loaded model artifacts in process" requirement.
type Cache struct {
	mu        sync.RWMutex
	configDir string
	models    map[string]*Model
}

func NewCache(configDir string) *Cache {
	return &Cache{configDir: configDir, models: make(map[string]*Model)}
}

// Get returns the cached Model for uuid, loading it on first use.
func (c *Cache) Get(uuid string) (*Model, error) {
	c.mu.RLock()
	m, ok := c.models[uuid]
	c.mu.RUnlock()
	if ok {
		return m, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.models[uuid]; ok {
		return m, nil
	}

	m, err := loadModel(c.configDir, uuid)
	if err != nil {
		return nil, err
	}
	c.models[uuid] = m
	return m, nil
}

func loadModel(configDir, uuid string) (*Model, error) {
	columnsPath := filepath.Join(configDir, uuid+"_columns.txt")
	features, err := readFeatureColumns(columnsPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrModelUnavailable, err)
	}

	index := make(map[string]int, len(features))
	for i, f := range features {
		index[f] = i
	}

	jsonPath := filepath.Join(configDir, uuid+"_json.json")
	jsonFile, err := os.Open(jsonPath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open primary model %s: %v", domain.ErrModelUnavailable, jsonPath, err)
	}
	primary, err := leaves.XGEnsembleFromJSON(jsonFile, true)
	jsonFile.Close()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load primary model %s: %v", domain.ErrModelUnavailable, jsonPath, err)
	}

	m := &Model{UUID: uuid, Features: features, FeatureIndex: index, Primary: primary}

	lgbmPath := filepath.Join(configDir, uuid+"_lgbm.txt")
	if _, statErr := os.Stat(lgbmPath); statErr == nil {
		secondary, err := leaves.LGEnsembleFromFile(lgbmPath, false)
		if err == nil {
			m.Secondary = secondary
		}
		// A secondary model failing to load is non-fatal: it is an
		// optional auxiliary score, not part of the final decision.
	}

	return m, nil
}

func readFeatureColumns(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var features []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			features = append(features, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(features) == 0 {
		return nil, fmt.Errorf("no feature columns found in %s", path)
	}
	return features, nil
}
