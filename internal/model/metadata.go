package model

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v2"
)

const (
	defaultInputName  = "input"
	defaultOutputName = "output"
)

// LoadMetadata reads a JSON or YAML metadata file. When labels_file is set the
// classes are read from it, relative to the metadata file.
func LoadMetadata(path string) (Metadata, error) {
	var metadata Metadata

	data, err := os.ReadFile(path)
	if err != nil {
		return metadata, fmt.Errorf("failed to read metadata: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &metadata)
	default:
		err = json.Unmarshal(data, &metadata)
	}
	if err != nil {
		return metadata, fmt.Errorf("failed to parse metadata: %w", err)
	}

	if metadata.LabelsFile != "" {
		labelsPath := metadata.LabelsFile
		if !filepath.IsAbs(labelsPath) {
			labelsPath = filepath.Join(filepath.Dir(path), labelsPath)
		}
		classes, err := LoadLabels(labelsPath)
		if err != nil {
			return metadata, err
		}
		metadata.Classes = classes
	}

	if metadata.InputName == "" {
		metadata.InputName = defaultInputName
	}
	if metadata.OutputName == "" {
		metadata.OutputName = defaultOutputName
	}
	if metadata.Name == "" {
		metadata.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	if err := metadata.Validate(); err != nil {
		return metadata, fmt.Errorf("invalid metadata %s: %w", path, err)
	}
	return metadata, nil
}

// LoadLabels reads one raw label per line, skipping blank lines.
func LoadLabels(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open labels: %w", err)
	}
	defer f.Close()

	var classes []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		classes = append(classes, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read labels: %w", err)
	}
	return classes, nil
}
