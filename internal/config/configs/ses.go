package configs

// SES holds configuration for the AWS SES message sender. Credentials are
// resolved through the default AWS credential chain. DryRun logs sends
// instead of calling the API, useful in non-production environments.
type SES struct {
	Region string `env:"REGION" envDefault:"us-east-1"`
	From   string `env:"FROM"`
	DryRun bool   `env:"DRY_RUN" envDefault:"false"`
}
