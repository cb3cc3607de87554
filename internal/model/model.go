// Package model defines the domain types used across the application.
package model

import "fmt"

// AggregatorPlatform identifies the upstream service an alert was pulled from.
type AggregatorPlatform string

// Supported aggregator platforms.
const (
	PlatformFeedly AggregatorPlatform = "Feedly"
	PlatformRSS    AggregatorPlatform = "RSS"
)

// SummarizationStatus tracks the downstream summarization stage of an alert.
type SummarizationStatus string

// Summarization states.
const (
	SummarizationNotStarted SummarizationStatus = "Not Started"
	SummarizationInProgress SummarizationStatus = "In Progress"
	SummarizationCompleted  SummarizationStatus = "Completed"
	SummarizationFailed     SummarizationStatus = "Failed"
)

// TaggingStatus tracks the downstream tagging stage of an alert.
type TaggingStatus string

// Tagging states.
const (
	TaggingNotTagged       TaggingStatus = "Not Tagged"
	TaggingPartiallyTagged TaggingStatus = "Partially Tagged"
	TaggingFullyTagged     TaggingStatus = "Fully Tagged"
)

// Summarization is reserved for an enrichment stage that runs after ingestion.
type Summarization struct {
	Status SummarizationStatus `json:"status" bson:"status"`
	Text   *string             `json:"text,omitempty" bson:"text,omitempty"`
}

// Tagging is reserved for an enrichment stage that runs after ingestion.
type Tagging struct {
	Status TaggingStatus `json:"status" bson:"status"`
	Tags   []string      `json:"tags" bson:"tags"`
}

// AlertRecord is the canonical representation of one ingested article.
// PublicationSourceURL is the deduplication key; ID is empty until the
// record has been stored.
type AlertRecord struct {
	ID                   string             `json:"id,omitempty" bson:"-"`
	AggregatorPlatform   AggregatorPlatform `json:"aggregatorPlatform" bson:"aggregatorPlatform"`
	PublicationSourceURL string             `json:"publicationSourceUrl" bson:"publicationSourceUrl"`
	PublicationDatetime  int64              `json:"publicationDatetime" bson:"publicationDatetime"`
	RawData              map[string]any     `json:"rawData" bson:"rawData"`
	Summarization        Summarization      `json:"summarization" bson:"summarization"`
	Tagging              Tagging            `json:"tagging" bson:"tagging"`
}

// NewAlertRecord builds an unsaved record with enrichment fields at their defaults.
func NewAlertRecord(platform AggregatorPlatform, sourceURL string, published int64, raw map[string]any) AlertRecord {
	return AlertRecord{
		AggregatorPlatform:   platform,
		PublicationSourceURL: sourceURL,
		PublicationDatetime:  published,
		RawData:              raw,
		Summarization:        Summarization{Status: SummarizationNotStarted},
		Tagging:              Tagging{Status: TaggingNotTagged, Tags: []string{}},
	}
}

// SourceDescriptor identifies one upstream feed to ingest from.
type SourceDescriptor struct {
	FeedName string             `yaml:"feed_name"`
	StreamID string             `yaml:"stream_id"`
	Platform AggregatorPlatform `yaml:"-"`
}

// PlatformOrDefault returns the source platform, treating an unset one as Feedly.
func (s SourceDescriptor) PlatformOrDefault() AggregatorPlatform {
	if s.Platform == "" {
		return PlatformFeedly
	}
	return s.Platform
}

func (p AggregatorPlatform) String() string { return string(p) }

// MarshalText implements encoding.TextMarshaler.
func (p AggregatorPlatform) MarshalText() ([]byte, error) {
	if !p.valid() {
		return nil, fmt.Errorf("unknown aggregator platform %q", string(p))
	}
	return []byte(p), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *AggregatorPlatform) UnmarshalText(b []byte) error {
	v := AggregatorPlatform(b)
	if !v.valid() {
		return fmt.Errorf("unknown aggregator platform %q", string(b))
	}
	*p = v
	return nil
}

func (p AggregatorPlatform) valid() bool {
	switch p {
	case PlatformFeedly, PlatformRSS:
		return true
	}
	return false
}

func (s SummarizationStatus) String() string { return string(s) }

// MarshalText implements encoding.TextMarshaler.
func (s SummarizationStatus) MarshalText() ([]byte, error) {
	if !s.valid() {
		return nil, fmt.Errorf("unknown summarization status %q", string(s))
	}
	return []byte(s), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *SummarizationStatus) UnmarshalText(b []byte) error {
	v := SummarizationStatus(b)
	if !v.valid() {
		return fmt.Errorf("unknown summarization status %q", string(b))
	}
	*s = v
	return nil
}

func (s SummarizationStatus) valid() bool {
	switch s {
	case SummarizationNotStarted, SummarizationInProgress, SummarizationCompleted, SummarizationFailed:
		return true
	}
	return false
}

func (s TaggingStatus) String() string { return string(s) }

// MarshalText implements encoding.TextMarshaler.
func (s TaggingStatus) MarshalText() ([]byte, error) {
	if !s.valid() {
		return nil, fmt.Errorf("unknown tagging status %q", string(s))
	}
	return []byte(s), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *TaggingStatus) UnmarshalText(b []byte) error {
	v := TaggingStatus(b)
	if !v.valid() {
		return fmt.Errorf("unknown tagging status %q", string(b))
	}
	*s = v
	return nil
}

func (s TaggingStatus) valid() bool {
	switch s {
	case TaggingNotTagged, TaggingPartiallyTagged, TaggingFullyTagged:
		return true
	}
	return false
}
