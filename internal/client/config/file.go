package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Sato-Isolated/uploadhaven-sub006/internal/flagx"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/timex"
	"gopkg.in/yaml.v3"
)

// FileConfig is a DTO used only for unmarshalling. Zero values leave the
// current setting untouched.
type FileConfig struct {
	ServerURL  string         `json:"server_url" yaml:"server_url"`
	Token      string         `json:"token" yaml:"token"`
	Timeout    timex.Duration `json:"timeout" yaml:"timeout"`
	OutDir     string         `json:"out_dir" yaml:"out_dir"`
	KDF        string         `json:"kdf" yaml:"kdf"`
	Iterations int            `json:"iterations" yaml:"iterations"`
	LogLevel   string         `json:"log_level" yaml:"log_level"`
	// HistoryDB is a pointer so a file can disable the history with "".
	HistoryDB  *string        `json:"history_db" yaml:"history_db"`
}

func parseFile(cfg *Config, args []string) error {
	path := flagx.ConfigFileFlag(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	var fc FileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &fc)
	default:
		err = json.Unmarshal(data, &fc)
	}
	if err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	if fc.ServerURL != "" {
		cfg.ServerURL = fc.ServerURL
	}
	if fc.Token != "" {
		cfg.Token = fc.Token
	}
	if fc.Timeout.Duration != 0 {
		cfg.Timeout = fc.Timeout.Duration
	}
	if fc.OutDir != "" {
		cfg.OutDir = fc.OutDir
	}
	if fc.KDF != "" {
		cfg.KDF = fc.KDF
	}
	if fc.Iterations != 0 {
		cfg.Iterations = fc.Iterations
	}
	if fc.LogLevel != "" {
		cfg.LogLevel = fc.LogLevel
	}
	if fc.HistoryDB != nil {
		cfg.HistoryDB = *fc.HistoryDB
	}
	return nil
}
