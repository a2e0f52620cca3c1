package config

// StorageConfig holds configuration for the publication storage connection.
type StorageConfig struct {
	Type            string `yaml:"type"`             // "local" or "gcs".
	BucketName      string `yaml:"bucket_name"`      // Bucket for gcs; sub-directory of BaseDir for local.
	CredentialsFile string `yaml:"credentials_file"` // Service account key for gcs. Empty uses default credentials.
	BaseDir         string `yaml:"base_dir"`         // Base directory for local file system operations.
	Prefix          string `yaml:"prefix"`           // Object name prefix; the run id is appended below it.
}
