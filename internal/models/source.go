package models

// DataSource is one polled data source from the sources file. Exactly one of
// Interval or Cron should be set; Cron wins when both are present.
type DataSource struct {
	ID       string `yaml:"id" json:"id"`
	WidgetID string `yaml:"widget_id" json:"widget_id"`
	URL      string `yaml:"url" json:"url"`
	Interval string `yaml:"interval,omitempty" json:"interval,omitempty"` // Go duration, e.g. "30s"
	Cron     string `yaml:"cron,omitempty" json:"cron,omitempty"`         // standard 5-field cron expression
	Enabled  bool   `yaml:"enabled" json:"enabled"`
}

// SourcesFile is the top-level shape of sources.yaml.
type SourcesFile struct {
	Sources []DataSource `yaml:"sources"`
}
