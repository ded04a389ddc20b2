package config

type RepoConfig struct {
	// Dir holds state that outlives a single run, such as the demo
	// checkpoint database. Scan checkpoints only land here when a run
	// names a path inside it.
	Dir string `mapstructure:"data_dir" validate:"required"`
}
