package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/mcuadros/go-defaults"
	"gopkg.in/yaml.v3"
)

// Default paths shared by Config and Settings.
const (
	DefaultDatasetDir    = "dataset/"
	DefaultRosterPath    = "dataset/database.cbor"
	DefaultAttendanceDir = "attendance/"
	DefaultSettingsPath  = "config.yaml"
)

// Settings is the user-editable YAML file. Section and key names follow the
// upper-case layout operators already have on disk.
type Settings struct {
	Path        PathSettings        `yaml:"PATH" json:"path"`
	Info        InfoSettings        `yaml:"INFO" json:"info"`
	Camera      CameraSettings      `yaml:"CAMERA" json:"camera"`
	Recognition RecognitionSettings `yaml:"RECOGNITION" json:"recognition"`
}

type PathSettings struct {
	DatasetDir string `yaml:"DATASET_DIR" json:"dataset_dir" default:"dataset/"`
	RosterPath string `yaml:"PKL_PATH" json:"roster_path" default:"dataset/database.cbor"`
}

type InfoSettings struct {
	PicturePrompt string `yaml:"PICTURE_PROMPT" json:"picture_prompt" default:"Upload an image to recognize faces"`
	WebcamPrompt  string `yaml:"WEBCAM_PROMPT" json:"webcam_prompt" default:"Use webcam to recognize faces in real-time"`
}

type CameraSettings struct {
	Index  int `yaml:"INDEX" json:"index" default:"0"`
	Width  int `yaml:"WIDTH" json:"width" default:"640"`
	Height int `yaml:"HEIGHT" json:"height" default:"480"`
}

type RecognitionSettings struct {
	DefaultTolerance float64 `yaml:"DEFAULT_TOLERANCE" json:"default_tolerance" default:"0.5"`
	AutoMark         bool    `yaml:"AUTO_MARK" json:"auto_mark" default:"true"`
	ShowDistance     bool    `yaml:"SHOW_DISTANCE" json:"show_distance" default:"true"`
}

// DefaultSettings returns settings populated from the struct tag defaults.
func DefaultSettings() *Settings {
	s := &Settings{}
	defaults.SetDefaults(s)
	return s
}

// Validate checks the ranges the settings form accepts.
func (s *Settings) Validate() error {
	var errs []error
	if s.Recognition.DefaultTolerance < 0 || s.Recognition.DefaultTolerance > 1 {
		errs = append(errs, fmt.Errorf("tolerance %.2f out of range [0,1]", s.Recognition.DefaultTolerance))
	}
	if s.Camera.Index < 0 || s.Camera.Index > 10 {
		errs = append(errs, fmt.Errorf("camera index %d out of range [0,10]", s.Camera.Index))
	}
	if s.Camera.Width < 320 || s.Camera.Width > 1920 {
		errs = append(errs, fmt.Errorf("camera width %d out of range [320,1920]", s.Camera.Width))
	}
	if s.Camera.Height < 240 || s.Camera.Height > 1080 {
		errs = append(errs, fmt.Errorf("camera height %d out of range [240,1080]", s.Camera.Height))
	}
	if s.Path.DatasetDir == "" {
		errs = append(errs, errors.New("dataset directory is required"))
	}
	if s.Path.RosterPath == "" {
		errs = append(errs, errors.New("roster path is required"))
	}
	return errors.Join(errs...)
}

// LoadSettings reads the settings file at path. A missing file yields defaults;
// when create is true the defaults are also written to path.
func LoadSettings(path string, create bool) (*Settings, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config
	if errors.Is(err, os.ErrNotExist) {
		s := DefaultSettings()
		if create {
			if err := SaveSettings(path, s); err != nil {
				return nil, err
			}
		}
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading settings: %w", err)
	}

	s := DefaultSettings()
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parsing settings %s: %w", path, err)
	}
	return s, nil
}

// SaveSettings validates and writes settings to path.
func SaveSettings(path string, s *Settings) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating settings directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing settings: %w", err)
	}
	return nil
}

// SettingsStore holds the live settings shared by the server and persists updates.
type SettingsStore struct {
	path    string
	mu      sync.RWMutex
	current Settings
}

// NewSettingsStore wraps s, which was loaded from path.
func NewSettingsStore(path string, s *Settings) *SettingsStore {
	if s == nil {
		s = DefaultSettings()
	}
	return &SettingsStore{path: path, current: *s}
}

// Get returns a copy of the current settings.
func (st *SettingsStore) Get() Settings {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.current
}

// Path returns the settings file location.
func (st *SettingsStore) Path() string {
	return st.path
}

// Update validates and writes next, then makes it current.
func (st *SettingsStore) Update(next *Settings) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if err := SaveSettings(st.path, next); err != nil {
		return err
	}
	st.current = *next
	return nil
}
