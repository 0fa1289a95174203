package rekognition

// Config holds the AWS Rekognition locator configuration.
type Config struct {
	// Region is the AWS region where Rekognition service will be used (e.g., "us-east-1")
	Region string `yaml:"region" envconfig:"REGION"`
	// MinConfidence drops detections below this percentage.
	MinConfidence float32 `yaml:"min_confidence" envconfig:"MIN_CONFIDENCE"`
}

// DefaultConfig returns the default Rekognition configuration.
func DefaultConfig() Config {
	return Config{
		Region:        "us-east-1",
		MinConfidence: 90,
	}
}
