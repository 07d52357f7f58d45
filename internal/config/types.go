package config

// AppConfig holds runtime startup configuration loaded from YAML.
type AppConfig struct {
	Port      int    `yaml:"port"`
	DSN       string `yaml:"dsn"` // MySQL DSN
	RedisURL  string `yaml:"redis_url"`
	Env       string `yaml:"env"` // "development" | "production"
	JWTSecret string `yaml:"jwt_secret"`

	// SiteURL is the canonical base URL of this site, e.g. "https://example.com".
	// Entry permalinks and webmention source URLs are built from it.
	SiteURL string `yaml:"site_url"`

	// LocalDomains are additional hosts treated as self when deciding which
	// outbound links deserve a webmention.
	LocalDomains []string `yaml:"local_domains"`

	MediaDir   string           `yaml:"media_dir"`
	Webmention WebmentionConfig `yaml:"webmention"`
	Micropub   MicropubConfig   `yaml:"micropub"`
	S3         S3Config         `yaml:"s3"`
}

// WebmentionConfig tunes outbound webmention delivery.
type WebmentionConfig struct {
	// TimeoutSeconds bounds every remote fetch (endpoint discovery, delivery,
	// linked-page metadata). A hung remote must never hang a publish.
	TimeoutSeconds int `yaml:"timeout_seconds"`
	// Async moves delivery onto the Redis task queue instead of sending
	// inside the publishing request.
	Async bool `yaml:"async"`
}

// MicropubConfig declares syndication targets advertised via q=syndicate-to.
type MicropubConfig struct {
	SyndicationTargets []SyndicationTarget `yaml:"syndication_targets"`
}

// SyndicationTarget is a third-party service entries can be pushed to,
// bridgy-style: the webmention is sent to Mention with the entry as source.
type SyndicationTarget struct {
	UID     string `yaml:"uid"  json:"uid"`
	Name    string `yaml:"name" json:"name"`
	Mention string `yaml:"mention" json:"-"`
}

// S3Config configures the optional media mirror to S3-compatible storage.
type S3Config struct {
	Enable          bool   `yaml:"enable"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	CustomDomain    string `yaml:"custom_domain"`
	PathStyleAccess bool   `yaml:"path_style_access"`
}
