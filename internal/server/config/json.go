package config

import (
	"encoding/json"
	"os"

	"github.com/oasis-water/oasis-backend/internal/flagx"
	"github.com/oasis-water/oasis-backend/internal/timex"
)

// JsonConfig is an intermediate DTO used only for reading JSON configuration
// files. It uses timex.Duration for interval fields, which allows parsing
// both string values such as "30m" and integer nanoseconds. After
// unmarshalling, non-empty fields are overlaid onto the runtime Config.
type JsonConfig struct {
	HTTPAddr             string         `json:"http_addr"`
	DatabaseDSN          string         `json:"database_dsn"`
	DataDir              string         `json:"data_dir"`
	JWTSecret            string         `json:"jwt_secret"`
	JWTIssuer            string         `json:"jwt_issuer"`
	JWTAudience          string         `json:"jwt_audience"`
	AccessTokenValidity  timex.Duration `json:"access_token_validity"`
	RefreshTokenValidity timex.Duration `json:"refresh_token_validity"`
	Workers              int            `json:"workers"`
	MaxUploadBytes       int64          `json:"max_upload_bytes"`
	S3AccessKey          string         `json:"s3_access_key"`
	S3SecretKey          string         `json:"s3_secret_key"`
	S3Bucket             string         `json:"s3_bucket"`
	S3Region             string         `json:"s3_region"`
	S3BaseEndpoint       string         `json:"s3_base_endpoint"`
}

// parseJson loads configuration values from the JSON file named by the
// -c/-config flags into the provided Config. Absent fields keep their
// current values. An unreadable or invalid file panics: a config file that
// was explicitly requested must not be silently skipped.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.DataDir, c.DataDir)
	setString(&config.JWTSecret, c.JWTSecret)
	setString(&config.JWTIssuer, c.JWTIssuer)
	setString(&config.JWTAudience, c.JWTAudience)
	setString(&config.S3AccessKey, c.S3AccessKey)
	setString(&config.S3SecretKey, c.S3SecretKey)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)

	if c.AccessTokenValidity.Duration != 0 {
		config.AccessTokenValidity = c.AccessTokenValidity.Duration
	}
	if c.RefreshTokenValidity.Duration != 0 {
		config.RefreshTokenValidity = c.RefreshTokenValidity.Duration
	}
	if c.Workers != 0 {
		config.Workers = c.Workers
	}
	if c.MaxUploadBytes != 0 {
		config.MaxUploadBytes = c.MaxUploadBytes
	}
}
