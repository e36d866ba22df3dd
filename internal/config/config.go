package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Addr string `env:"GRIDCHECK_ADDR" envDefault:":8080" validate:"required"`

	GridRows     int `env:"GRID_ROWS" envDefault:"5" validate:"min=1,max=16"`
	GridCols     int `env:"GRID_COLS" envDefault:"5" validate:"min=1,max=16"`
	MarkedCells  int `env:"MARKED_CELLS" envDefault:"12" validate:"min=0"`
	RegionMin    int `env:"REGION_MIN" envDefault:"10" validate:"min=0"`
	RegionMax    int `env:"REGION_MAX" envDefault:"50" validate:"gtfield=RegionMin"`
	RegionExtent int `env:"REGION_EXTENT" envDefault:"30" validate:"min=1,max=100"`

	TickInterval    time.Duration `env:"TICK_INTERVAL" envDefault:"1s" validate:"gt=0"`
	SessionTTL      time.Duration `env:"SESSION_TTL" envDefault:"1h" validate:"gt=0"`
	CleanupInterval time.Duration `env:"CLEANUP_INTERVAL" envDefault:"5m" validate:"gt=0"`

	FaceDetector    string  `env:"FACE_DETECTOR" envDefault:"pigo" validate:"oneof=pigo accept-all"`
	FaceCascadePath string  `env:"FACE_CASCADE_PATH" envDefault:"cascade/facefinder" validate:"required_if=FaceDetector pigo"`
	FaceMinSize     int     `env:"FACE_MIN_SIZE" envDefault:"20" validate:"min=1"`
	FaceMaxSize     int     `env:"FACE_MAX_SIZE" envDefault:"1000" validate:"gtfield=FaceMinSize"`
	FaceMinQuality  float32 `env:"FACE_MIN_QUALITY" envDefault:"5" validate:"min=0"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json" validate:"oneof=json console"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads optional dotenv files (".env" when none are given), then the
// environment, then validates the result. Missing dotenv files are ignored.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load dotenv: %w", err)
	}

	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	if c.MarkedCells >= c.GridRows*c.GridCols {
		return fmt.Errorf("validate config: MARKED_CELLS %d must be below %d grid cells", c.MarkedCells, c.GridRows*c.GridCols)
	}
	if c.RegionMax-1+c.RegionExtent > 100 {
		return fmt.Errorf("validate config: region max %d with extent %d leaves the photo", c.RegionMax, c.RegionExtent)
	}
	return nil
}
