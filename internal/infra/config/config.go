package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/childlens/bmnprep/internal/domain/entity"
)

const (
	SplitThreeWay = "three_way"
	SplitTwoWay   = "two_way"
)

type Config struct {
	ConfigFile string `env:"CONFIG_FILE" yaml:"-"`

	AnnotationsDir   string   `env:"ANNOTATIONS_DIR"   yaml:"annotations_dir"`
	AnnotationFormat string   `env:"ANNOTATION_FORMAT" envDefault:"superannotate" yaml:"annotation_format"`
	Labels           []string `env:"LABELS"            envSeparator:"," yaml:"labels"`
	LabelsFile       string   `env:"LABELS_FILE"       yaml:"labels_file"`

	FPS           float64 `env:"FPS"            envDefault:"30"  yaml:"fps"`
	ChunkSize     int     `env:"CHUNK_SIZE"     envDefault:"0"   yaml:"chunk_size"`
	TrainRatio    float64 `env:"TRAIN_RATIO"    envDefault:"0.8" yaml:"train_ratio"`
	SplitMode     string  `env:"SPLIT_MODE"     envDefault:"three_way" yaml:"split_mode"`
	ClipInterval  int     `env:"CLIP_INTERVAL"  envDefault:"16"  yaml:"clip_interval"`
	FrameInterval int     `env:"FRAME_INTERVAL" envDefault:"16"  yaml:"frame_interval"`

	PoolType      string `env:"POOL_TYPE"       envDefault:"mean" yaml:"pool_type"`
	NumProposals  int    `env:"NUM_PROPOSALS"   envDefault:"100"  yaml:"num_proposals"`
	NumSampleBins int    `env:"NUM_SAMPLE_BINS" envDefault:"3"    yaml:"num_sample_bins"`
	FeatureFormat string `env:"FEATURE_FORMAT"  envDefault:"csv"  yaml:"feature_format"`

	VideosDir       string `env:"VIDEOS_DIR"        yaml:"videos_dir"`
	VideoExt        string `env:"VIDEO_EXT"         envDefault:".MP4" yaml:"video_ext"`
	RawframesDir    string `env:"RAWFRAMES_DIR"     yaml:"rawframes_dir"`
	FeaturesDir     string `env:"FEATURES_DIR"      yaml:"features_dir"`
	FlowFeaturesDir string `env:"FLOW_FEATURES_DIR" yaml:"flow_features_dir"`

	OutputDir        string `env:"OUTPUT_DIR"         envDefault:"output"      yaml:"output_dir"`
	SplitDir         string `env:"SPLIT_DIR"          envDefault:"annotations" yaml:"split_dir"`
	ListDir          string `env:"LIST_DIR"           envDefault:"lists"       yaml:"list_dir"`
	FeatureOutputDir string `env:"FEATURE_OUTPUT_DIR" envDefault:"features"    yaml:"feature_output_dir"`
	ChunkVideoDir    string `env:"CHUNK_VIDEO_DIR"    envDefault:"videos"      yaml:"chunk_video_dir"`
	ChunkFramesDir   string `env:"CHUNK_FRAMES_DIR"   envDefault:"rawframes"   yaml:"chunk_frames_dir"`

	ExtractFrames bool   `env:"EXTRACT_FRAMES" envDefault:"false" yaml:"extract_frames"`
	WorkerCount   int    `env:"WORKER_COUNT"   envDefault:"4"     yaml:"worker_count"`
	FFmpegThreads int    `env:"FFMPEG_THREADS" envDefault:"0"     yaml:"ffmpeg_threads"`
	FrameFormat   string `env:"FRAME_FORMAT"   envDefault:"jpg"   yaml:"frame_format"`

	ProbeCachePath string `env:"PROBE_CACHE_PATH" envDefault:"" yaml:"probe_cache_path"`
	MetricsFile    string `env:"METRICS_FILE"     envDefault:"" yaml:"metrics_file"`
	OTLPEndpoint   string `env:"OTLP_ENDPOINT"    envDefault:"" yaml:"otlp_endpoint"`
	LogLevel       string `env:"LOG_LEVEL"        envDefault:"info" yaml:"log_level"`
	Progress       bool   `env:"PROGRESS"         envDefault:"true" yaml:"progress"`
}

// Load reads the environment and, when CONFIG_FILE is set, overlays the YAML
// file on top of it. Keys present in the file win over the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, entity.NewConfigurationError(err)
	}
	if cfg.ConfigFile != "" {
		if err := cfg.overlayFile(cfg.ConfigFile); err != nil {
			return nil, entity.NewConfigurationError(err)
		}
	}
	if len(cfg.Labels) == 0 && cfg.LabelsFile != "" {
		labels, err := ReadLabelsFile(cfg.LabelsFile)
		if err != nil {
			return nil, entity.NewConfigurationError(err)
		}
		cfg.Labels = labels
	}
	cfg.Labels = trimLabels(cfg.Labels)
	return cfg, nil
}

func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// ReadLabelsFile reads an action-name list: a header line followed by one
// label per line. Blank lines are ignored.
func ReadLabelsFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open labels file: %w", err)
	}
	defer f.Close()

	var labels []string
	sc := bufio.NewScanner(f)
	header := true
	for sc.Scan() {
		if header {
			header = false
			continue
		}
		if l := strings.TrimSpace(sc.Text()); l != "" {
			labels = append(labels, l)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read labels file: %w", err)
	}
	return labels, nil
}

func trimLabels(in []string) []string {
	out := make([]string, 0, len(in))
	for _, l := range in {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

// Validate checks every option the run depends on before any work starts.
// All problems are reported together.
func (c *Config) Validate() error {
	var errs []error
	if c.AnnotationsDir == "" {
		errs = append(errs, errors.New("ANNOTATIONS_DIR is required"))
	} else if fi, err := os.Stat(c.AnnotationsDir); err != nil || !fi.IsDir() {
		errs = append(errs, fmt.Errorf("ANNOTATIONS_DIR %q is not a directory", c.AnnotationsDir))
	}
	if c.OutputDir == "" {
		errs = append(errs, errors.New("OUTPUT_DIR is required"))
	}
	if len(c.Labels) == 0 {
		errs = append(errs, errors.New("label set is empty (set LABELS or LABELS_FILE)"))
	}
	if c.TrainRatio <= 0 || c.TrainRatio >= 1 {
		errs = append(errs, fmt.Errorf("TRAIN_RATIO must be in (0,1), got %v", c.TrainRatio))
	}
	if c.SplitMode != SplitThreeWay && c.SplitMode != SplitTwoWay {
		errs = append(errs, fmt.Errorf("SPLIT_MODE must be %s or %s, got %q", SplitThreeWay, SplitTwoWay, c.SplitMode))
	}
	if c.FPS <= 0 {
		errs = append(errs, fmt.Errorf("FPS must be positive, got %v", c.FPS))
	}
	if c.ChunkSize < 0 {
		errs = append(errs, fmt.Errorf("CHUNK_SIZE must not be negative, got %d", c.ChunkSize))
	}
	if c.ClipInterval < 1 || c.FrameInterval < 1 {
		errs = append(errs, errors.New("CLIP_INTERVAL and FRAME_INTERVAL must be at least 1"))
	}
	if c.PoolType != "mean" && c.PoolType != "max" {
		errs = append(errs, fmt.Errorf("POOL_TYPE must be mean or max, got %q", c.PoolType))
	}
	if c.NumProposals < 1 {
		errs = append(errs, fmt.Errorf("NUM_PROPOSALS must be at least 1, got %d", c.NumProposals))
	}
	if c.NumSampleBins < 1 {
		errs = append(errs, fmt.Errorf("NUM_SAMPLE_BINS must be at least 1, got %d", c.NumSampleBins))
	}
	if c.FeatureFormat != "csv" && c.FeatureFormat != "npy" {
		errs = append(errs, fmt.Errorf("FEATURE_FORMAT must be csv or npy, got %q", c.FeatureFormat))
	}
	if c.FlowFeaturesDir != "" && c.FeaturesDir == "" {
		errs = append(errs, errors.New("FLOW_FEATURES_DIR requires FEATURES_DIR"))
	}
	if c.ExtractFrames && (c.VideosDir == "" || c.RawframesDir == "") {
		errs = append(errs, errors.New("EXTRACT_FRAMES requires VIDEOS_DIR and RAWFRAMES_DIR"))
	}
	if c.WorkerCount < 1 {
		errs = append(errs, fmt.Errorf("WORKER_COUNT must be at least 1, got %d", c.WorkerCount))
	}
	if len(errs) > 0 {
		return entity.NewConfigurationError(errors.Join(errs...))
	}
	return nil
}
