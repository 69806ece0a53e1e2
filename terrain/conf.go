package terrain

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/nickgildea/leven/terrain/backend"
	"github.com/nickgildea/leven/terrain/backend/cpu"
	"github.com/nickgildea/leven/terrain/chunk"
	"github.com/nickgildea/leven/terrain/collision"
	"github.com/nickgildea/leven/terrain/cube"
	"github.com/nickgildea/leven/terrain/mesh"
	"github.com/pelletier/go-toml"
	"gopkg.in/yaml.v3"
)

// Config contains options for creating a Volume.
type Config struct {
	// Log is the Logger to use for logging information. If nil, Log is set to slog.Default().
	Log *slog.Logger
	// Bounds are the world bounds of the volume.
	Bounds cube.BBox
	// Layout is the chunk layout of the volume. If left empty, chunk.DefaultLayout() is used.
	Layout chunk.Layout
	// Density is the unedited density of the volume used by the backends created for it. If nil, cpu.Air is
	// used. Density is ignored for backends set explicitly below.
	Density cpu.Density
	// Backend generates the meshes of clipmap nodes. If nil, a cpu.Backend sampling Layout.VoxelsPerChunk voxels
	// per chunk is created and closed with the Volume.
	Backend backend.Backend
	// CollisionBackend generates collision meshes. If nil, a cpu.Backend sampling
	// Layout.CollisionVoxelsPerChunk voxels per chunk is created and closed with the Volume.
	CollisionBackend backend.Backend
	// Renderer receives the meshes of active nodes. If nil, a mesh.Registry is used.
	Renderer mesh.Renderer
	// Physics receives collision meshes. If nil, they are discarded.
	Physics collision.Physics
	// DisableCollision disables the collision cache entirely.
	DisableCollision bool
	// Simplify holds the mesh simplification options of leaf sized nodes. If left empty,
	// mesh.DefaultSimplifyOptions() is used.
	Simplify mesh.SimplifyOptions
	// Workers is the number of nodes generated at the same time during an update. If zero, it is set to the
	// number of CPUs.
	Workers int
	// CollisionPoolSize is the maximum number of collision nodes holding geometry. If zero,
	// collision.DefaultPoolSize is used.
	CollisionPoolSize int
	// CollisionQueueSize is the number of collision load requests that may wait before scheduling falls back to
	// enqueueing asynchronously.
	CollisionQueueSize int
}

// UserConfig is the user configuration of a terrain volume. It can be read from and written to TOML and YAML
// files and converted to a Config using UserConfig.Config.
type UserConfig struct {
	Volume struct {
		// Extent is the world size of the volume along every axis. The volume is centred on the origin.
		Extent int
		// VoxelsPerChunk is the number of voxels sampled along each axis of a clipmap chunk.
		VoxelsPerChunk int
		// CollisionVoxelsPerChunk is the number of voxels sampled along each axis of a collision chunk.
		CollisionVoxelsPerChunk int
	}
	Terrain struct {
		// Flat produces a flat ground plane at Height instead of hills.
		Flat bool
		// Seed selects the pattern of the hills.
		Seed uint64
		// Height is the average height of the surface in voxels.
		Height float64
		// Amplitude is the largest deviation of the hills from Height in voxels.
		Amplitude float64
		// Wavelength is the horizontal distance between hills in voxels.
		Wavelength float64
		// Octaves is the number of noise layers summed.
		Octaves int
	}
	Update struct {
		// Workers is the number of nodes generated at the same time. Set to 0 to use the number of CPUs.
		Workers int
		// Rate is the maximum number of update passes per second.
		Rate float64
	}
	Simplify struct {
		// MaxError is the largest distance a simplified vertex may move away from the surface.
		MaxError float64
		// MaxEdgeSize is the longest edge that may be collapsed.
		MaxEdgeSize float64
		// MinAngleCosine limits collapses between vertices with diverging normals.
		MinAngleCosine float64
	}
	Collision struct {
		// Enabled controls if collision meshes are generated.
		Enabled bool
		// PoolSize is the maximum number of collision nodes holding geometry.
		PoolSize int
		// QueueSize is the number of load requests that may wait for the collision goroutine.
		QueueSize int
	}
}

// Config converts a UserConfig to a Config, so that it may be used for creating a Volume. An error is returned
// if the values in the UserConfig are invalid.
func (uc UserConfig) Config(log *slog.Logger) (Config, error) {
	if uc.Volume.Extent <= 0 {
		return Config{}, fmt.Errorf("volume extent must be positive, got %v", uc.Volume.Extent)
	}
	layout := chunk.Layout{VoxelsPerChunk: uc.Volume.VoxelsPerChunk, CollisionVoxelsPerChunk: uc.Volume.CollisionVoxelsPerChunk}
	if err := layout.Validate(); err != nil {
		return Config{}, fmt.Errorf("volume layout: %w", err)
	}
	half := uc.Volume.Extent / 2
	conf := Config{
		Log:                log,
		Bounds:             cube.Box(cube.Pos{-half, -half, -half}, cube.Pos{half, half, half}),
		Layout:             layout,
		DisableCollision:   !uc.Collision.Enabled,
		Workers:            uc.Update.Workers,
		CollisionPoolSize:  uc.Collision.PoolSize,
		CollisionQueueSize: uc.Collision.QueueSize,
	}
	if uc.Terrain.Flat {
		conf.Density = cpu.Ground{Height: uc.Terrain.Height, Material: 1}
	} else {
		conf.Density = cpu.Hills{
			Seed:       uc.Terrain.Seed,
			Height:     uc.Terrain.Height,
			Amplitude:  uc.Terrain.Amplitude,
			Wavelength: uc.Terrain.Wavelength,
			Octaves:    uc.Terrain.Octaves,
			Material:   1,
		}
	}
	conf.Simplify = mesh.DefaultSimplifyOptions()
	if uc.Simplify.MaxError > 0 {
		conf.Simplify.MaxError = uc.Simplify.MaxError
	}
	if uc.Simplify.MaxEdgeSize > 0 {
		conf.Simplify.MaxEdgeSize = uc.Simplify.MaxEdgeSize
	}
	if uc.Simplify.MinAngleCosine > 0 {
		conf.Simplify.MinAngleCosine = uc.Simplify.MinAngleCosine
	}
	return conf, nil
}

// DefaultConfig returns a configuration with the default values filled out.
func DefaultConfig() UserConfig {
	c := UserConfig{}
	c.Volume.Extent = 8192
	c.Volume.VoxelsPerChunk = chunk.DefaultVoxelsPerChunk
	c.Volume.CollisionVoxelsPerChunk = chunk.DefaultCollisionVoxelsPerChunk
	c.Terrain.Height = 8
	c.Terrain.Amplitude = 24
	c.Terrain.Wavelength = 96
	c.Terrain.Octaves = 4
	c.Update.Rate = 30
	opts := mesh.DefaultSimplifyOptions()
	c.Simplify.MaxError = opts.MaxError
	c.Simplify.MaxEdgeSize = opts.MaxEdgeSize
	c.Simplify.MinAngleCosine = opts.MinAngleCosine
	c.Collision.Enabled = true
	c.Collision.PoolSize = collision.DefaultPoolSize
	c.Collision.QueueSize = 64
	return c
}

// LoadUserConfig reads a UserConfig from the file at path. Files ending in .yaml or .yml are decoded as YAML,
// any other file as TOML. If the file does not exist, it is created with the values of DefaultConfig.
func LoadUserConfig(path string) (UserConfig, error) {
	c := DefaultConfig()
	contents, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return c, fmt.Errorf("read config: %w", err)
		}
		return c, WriteUserConfig(path, c)
	}
	if isYAML(path) {
		err = yaml.Unmarshal(contents, &c)
	} else {
		err = toml.Unmarshal(contents, &c)
	}
	if err != nil {
		return c, fmt.Errorf("decode config: %w", err)
	}
	return c, nil
}

// WriteUserConfig writes c to the file at path in the format selected by its extension, creating the directory
// of the file if needed.
func WriteUserConfig(path string, c UserConfig) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0777); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = toml.Marshal(c)
	}
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
