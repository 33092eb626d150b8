package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Stream defines the final, processed structure for a single monitored stream.
type Stream struct {
	Name        string
	Id          string
	ManifestURL string
}

// Config holds the fully processed application configuration.
type Config struct {
	Name      string
	UserAgent string
	// CorrectTimestampOffset gates the drift correction feature.
	CorrectTimestampOffset bool
	// MaxTimestampDiscrepancy is the tolerance in seconds below which a
	// decode-time discrepancy is left alone.
	MaxTimestampDiscrepancy float64
	Streams                 []Stream
}

// rawStream maps directly to a stream entry in the JSON file.
type rawStream struct {
	Name        string `json:"Name"`
	Id          string `json:"Id"`
	ManifestURL string `json:"Manifest"`
}

// rawConfig is the intermediate structure that maps directly to the JSON file.
type rawConfig struct {
	Name                    string      `json:"Name"`
	UserAgent               string      `json:"UserAgent"`
	CorrectTimestampOffset  *bool       `json:"CorrectTimestampOffset"`
	MaxTimestampDiscrepancy *float64    `json:"MaxTimestampDiscrepancy"`
	Streams                 []rawStream `json:"Streams"`
}

const defaultMaxTimestampDiscrepancy = 0.1 // seconds

// LoadConfig reads and parses the configuration file from the given path,
// applying defaults for absent correction options and validating the stream
// list.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file at %s: %w", path, err)
	}

	var rawCfg rawConfig
	if err := json.Unmarshal(data, &rawCfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config JSON: %w", err)
	}

	correct := true
	if rawCfg.CorrectTimestampOffset != nil {
		correct = *rawCfg.CorrectTimestampOffset
	}

	tolerance := defaultMaxTimestampDiscrepancy
	if rawCfg.MaxTimestampDiscrepancy != nil {
		tolerance = *rawCfg.MaxTimestampDiscrepancy
	}
	if tolerance < 0 {
		return nil, fmt.Errorf("MaxTimestampDiscrepancy must not be negative, got %v", tolerance)
	}

	streams := make([]Stream, 0, len(rawCfg.Streams))
	seen := make(map[string]struct{}, len(rawCfg.Streams))
	for _, rs := range rawCfg.Streams {
		if rs.Id == "" {
			return nil, fmt.Errorf("stream %q has an empty Id", rs.Name)
		}
		if rs.ManifestURL == "" {
			return nil, fmt.Errorf("stream '%s' has no Manifest URL", rs.Id)
		}
		if _, dup := seen[rs.Id]; dup {
			return nil, fmt.Errorf("duplicate stream Id in config: %s", rs.Id)
		}
		seen[rs.Id] = struct{}{}

		streams = append(streams, Stream{
			Name:        rs.Name,
			Id:          rs.Id,
			ManifestURL: rs.ManifestURL,
		})
	}

	return &Config{
		Name:                    rawCfg.Name,
		UserAgent:               rawCfg.UserAgent,
		CorrectTimestampOffset:  correct,
		MaxTimestampDiscrepancy: tolerance,
		Streams:                 streams,
	}, nil
}
